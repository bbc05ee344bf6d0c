package prompt

import (
	"strings"
	"testing"

	"github.com/aipy-go/aipy/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIncludesRoleAndProtocolSegments(t *testing.T) {
	a := NewAssembler()
	out := a.Build(Options{Role: "You are a helpful bot.", Language: "python"})

	assert.True(t, strings.HasPrefix(out, "You are a helpful bot."))
	assert.Contains(t, out, "Block-Start")
	assert.Contains(t, out, "Cmd-Exec")
	assert.Contains(t, out, "runtime.get_env")
}

func TestBuildFallsBackToRoleTipWhenRoleEmpty(t *testing.T) {
	a := NewAssembler()
	out := a.Build(Options{RoleTip: Tip{Name: "aipy", Detail: "Data analysis assistant."}})
	assert.True(t, strings.HasPrefix(out, "Data analysis assistant."))
}

func TestBuildOmitsToolSegmentWhenDisabled(t *testing.T) {
	a := NewAssembler()
	out := a.Build(Options{Role: "r"})
	assert.NotContains(t, out, "Tool calling")
}

func TestBuildIncludesToolCatalogWhenEnabled(t *testing.T) {
	a := NewAssembler()
	out := a.Build(Options{
		Role:         "r",
		ToolsEnabled: true,
		Tools: []dispatch.ToolDescriptor{
			{Name: "search", Description: "web search", Server: "srv1"},
		},
	})
	assert.Contains(t, out, "Tool calling")
	assert.Contains(t, out, `"name":"search"`)
}

func TestBuildIncludesAPICatalogWhenAPIsPresent(t *testing.T) {
	a := NewAssembler()
	out := a.Build(Options{
		Role: "r",
		APIs: []APIDescriptor{{Name: "weather", Desc: "forecast lookup", EnvVar: "WEATHER_API_KEY"}},
	})
	assert.Contains(t, out, "weather")
	assert.Contains(t, out, "WEATHER_API_KEY")
	assert.Contains(t, out, "runtime.get_env")
}

func TestBuildIncludesTipsSegmentWhenProvided(t *testing.T) {
	dir := t.TempDir()
	writeTipsFile(t, dir, "aipy.toml", sampleTipsTOML)
	mgr := NewTipsManager(dir)
	require.NoError(t, mgr.LoadAll())

	a := NewAssembler()
	out := a.Build(Options{Role: "r", Tips: mgr.Current()})
	assert.Contains(t, out, "<tips")
	assert.Contains(t, out, "<matplotlib>")
}
