package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Tip is one named bit of role/skill guidance loaded from a tips TOML file.
type Tip struct {
	Name   string
	Short  string
	Detail string
}

// String renders the tip as the source's <name>...detail...</name> block.
func (t Tip) String() string {
	return fmt.Sprintf("<%s>\n%s\n</%s>", t.Name, strings.TrimSpace(t.Detail), t.Name)
}

// Tips is a named collection of Tip, plus a distinguished "role" tip.
type Tips struct {
	Name string
	Role Tip
	tips map[string]Tip
	// order preserves TOML declaration order for deterministic rendering.
	order []string
}

type tipFile struct {
	Tips map[string]struct {
		Name   string `toml:"name"`
		Short  string `toml:"short"`
		Detail string `toml:"detail"`
	} `toml:"tips"`
}

// LoadTips parses a tips TOML file at path into a Tips collection. The
// "role" entry (if present) becomes Role and is excluded from the ordinary
// tip list.
func LoadTips(path string) (*Tips, error) {
	var file tipFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("load tips %s: %w", path, err)
	}

	out := &Tips{tips: make(map[string]Tip)}
	for name, data := range file.Tips {
		tip := Tip{Name: name, Short: data.Short, Detail: data.Detail}
		if name == "role" {
			tip.Name = data.Name
			out.Role = tip
			out.Name = data.Name
			continue
		}
		out.tips[name] = tip
		out.order = append(out.order, name)
	}
	return out, nil
}

// Get returns a named tip.
func (t *Tips) Get(name string) (Tip, bool) {
	tip, ok := t.tips[name]
	return tip, ok
}

// Len returns the number of non-role tips.
func (t *Tips) Len() int {
	return len(t.tips)
}

// String renders the full collection as <tips>...</tips>, one tip per
// line, in declaration order.
func (t *Tips) String() string {
	var b strings.Builder
	b.WriteString("<tips")
	for _, name := range t.order {
		b.WriteString("\n")
		b.WriteString(t.tips[name].String())
	}
	b.WriteString("\n</tips>")
	return b.String()
}

// TipsManager loads tips files from a directory and tracks which
// collection is active, matching the source's role-switching (`use`).
type TipsManager struct {
	dir         string
	collections map[string]*Tips
	current     *Tips
	defaultName string
}

// NewTipsManager returns a manager rooted at dir.
func NewTipsManager(dir string) *TipsManager {
	return &TipsManager{dir: dir, collections: make(map[string]*Tips)}
}

// LoadAll loads every *.toml file in dir (skipping names starting with
// "_"), keyed by each file's role name lowercased. The first file loaded
// whose role is named "aipy" becomes the default; if none is named that,
// the first loaded file wins.
func (m *TipsManager) LoadAll() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("read tips dir %s: %w", m.dir, err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".toml") || strings.HasPrefix(name, "_") {
			continue
		}
		tips, err := LoadTips(filepath.Join(m.dir, name))
		if err != nil {
			return err
		}
		key := strings.ToLower(tips.Name)
		m.collections[key] = tips
		if m.defaultName == "" || key == "aipy" {
			m.defaultName = key
		}
	}
	if m.defaultName != "" {
		m.current = m.collections[m.defaultName]
	}
	return nil
}

// Use switches the active collection to name, returning false if unknown.
func (m *TipsManager) Use(name string) bool {
	name = strings.ToLower(name)
	tips, ok := m.collections[name]
	if !ok {
		return false
	}
	m.current = tips
	return true
}

// Current returns the active tips collection, or nil if none loaded.
func (m *TipsManager) Current() *Tips {
	return m.current
}
