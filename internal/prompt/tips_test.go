package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTipsTOML = `
[tips.role]
name = "aipy"
short = "default role"
detail = "  You are aipy, a data analysis assistant.  "

[tips.matplotlib]
name = "matplotlib"
short = "plotting"
detail = "Use a CJK-capable font before plotting any Chinese labels."
`

func writeTipsFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTipsSeparatesRoleFromTips(t *testing.T) {
	dir := t.TempDir()
	path := writeTipsFile(t, dir, "aipy.toml", sampleTipsTOML)

	tips, err := LoadTips(path)
	require.NoError(t, err)

	assert.Equal(t, "aipy", tips.Name)
	assert.Equal(t, "You are aipy, a data analysis assistant.", tips.Role.String()[len("<aipy>\n"):len(tips.Role.String())-len("\n</aipy>")])
	assert.Equal(t, 1, tips.Len())

	tip, ok := tips.Get("matplotlib")
	require.True(t, ok)
	assert.Equal(t, "matplotlib", tip.Name)
}

func TestTipStringRendering(t *testing.T) {
	tip := Tip{Name: "foo", Detail: "  do the thing  "}
	assert.Equal(t, "<foo>\ndo the thing\n</foo>", tip.String())
}

func TestTipsStringRendersUnclosedOpeningTag(t *testing.T) {
	dir := t.TempDir()
	path := writeTipsFile(t, dir, "aipy.toml", sampleTipsTOML)
	tips, err := LoadTips(path)
	require.NoError(t, err)

	rendered := tips.String()
	assert.True(t, len(rendered) > 0)
	assert.Contains(t, rendered, "<tips\n<matplotlib>")
	assert.Contains(t, rendered, "\n</tips>")
}

func TestTipsManagerLoadAllAndUse(t *testing.T) {
	dir := t.TempDir()
	writeTipsFile(t, dir, "aipy.toml", sampleTipsTOML)
	writeTipsFile(t, dir, "writer.toml", `
[tips.role]
name = "writer"
short = "writer role"
detail = "You write prose."
`)
	writeTipsFile(t, dir, "_disabled.toml", sampleTipsTOML)

	mgr := NewTipsManager(dir)
	require.NoError(t, mgr.LoadAll())

	require.NotNil(t, mgr.Current())
	assert.Equal(t, "aipy", mgr.Current().Name)

	assert.True(t, mgr.Use("WRITER"))
	assert.Equal(t, "writer", mgr.Current().Name)

	assert.False(t, mgr.Use("nonexistent"))
	assert.Equal(t, "writer", mgr.Current().Name)
}
