package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func schemaProp(names ...string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(names))
	for _, n := range names {
		out[n] = json.RawMessage(`{"type":"string"}`)
	}
	return out
}

func TestSelectBestCandidateScoring(t *testing.T) {
	// P7: t1{required:[a], props:{a,b}} vs t2{required:[a], props:{a,b,c}}
	// with arguments {a,b,c} should select t2.
	t1 := ToolDescriptor{Name: "t", Server: "s1", InputSchema: InputSchema{
		Properties: schemaProp("a", "b"), Required: []string{"a"},
	}}
	t2 := ToolDescriptor{Name: "t", Server: "s2", InputSchema: InputSchema{
		Properties: schemaProp("a", "b", "c"), Required: []string{"a"},
	}}

	args := map[string]json.RawMessage{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`2`),
		"c": json.RawMessage(`3`),
	}

	chosen, ok := selectBestCandidate([]ToolDescriptor{t1, t2}, args)
	assert.True(t, ok)
	assert.Equal(t, "s2", chosen.Server)
}

func TestSelectBestCandidateRequiredFilter(t *testing.T) {
	t1 := ToolDescriptor{Name: "t", Server: "s1", InputSchema: InputSchema{Required: []string{"a"}}}
	args := map[string]json.RawMessage{"b": json.RawMessage(`1`)}

	_, ok := selectBestCandidate([]ToolDescriptor{t1}, args)
	assert.False(t, ok)
}

func TestProcessCommandToggles(t *testing.T) {
	d := &Dispatcher{serverEnabled: map[string]bool{"srv": true}}

	res := d.ProcessCommand("enable", "")
	assert.Equal(t, "ok", res.Status)
	assert.True(t, d.globallyEnabled)

	res = d.ProcessCommand("disable", "srv")
	assert.Equal(t, "ok", res.Status)
	assert.False(t, d.serverEnabled["srv"])

	res = d.ProcessCommand("bogus", "")
	assert.Equal(t, "error", res.Status)
}

func TestIsCacheFreshPrecedence(t *testing.T) {
	cf := cacheFile{ConfigMTime: 100}

	assert.True(t, isCacheFresh(cf, 100, time.Now()))
	assert.False(t, isCacheFresh(cf, 101, time.Now()))
	assert.False(t, isCacheFresh(cf, 100, time.Now().Add(-49*time.Hour)))
}

func TestListToolsGloballyDisabled(t *testing.T) {
	d := &Dispatcher{catalogPath: "/nonexistent/catalog.json"}
	assert.Empty(t, d.ListTools(nil))
}
