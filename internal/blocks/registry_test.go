package blocks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHelloWorld(t *testing.T) {
	r := NewRegistry("python")
	reply := "<!-- Block-Start: {\"id\":\"b1\"} -->\n```python\nprint(\"hi\")\n```\n<!-- Block-End: {\"id\":\"b1\"} -->\n<!-- Cmd-Exec: {\"id\":\"b1\"} -->"

	res := r.Parse(reply, false)
	require.Empty(t, res.Errors)
	require.Len(t, res.NewBlocks, 1)
	require.Len(t, res.ExecBlock, 1)
	assert.Equal(t, "b1", res.ExecBlock[0].ID)
	assert.Equal(t, "print(\"hi\")\n", res.ExecBlock[0].Code)
}

func TestParseDuplicateID(t *testing.T) {
	r := NewRegistry("python")
	reply := "<!-- Block-Start: {\"id\":\"x\"} -->\n```python\na=1\n```\n<!-- Block-End: {\"id\":\"x\"} -->\n" +
		"<!-- Block-Start: {\"id\":\"x\"} -->\n```python\nb=2\n```\n<!-- Block-End: {\"id\":\"x\"} -->"

	res := r.Parse(reply, false)
	require.Len(t, res.NewBlocks, 1)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrDuplicateID, res.Errors[0].Kind)

	first, ok := r.Get("x")
	require.True(t, ok)
	assert.Equal(t, "a=1\n", first.Code)
}

func TestParseDuplicateAcrossRounds(t *testing.T) {
	r := NewRegistry("python")
	r.Parse("<!-- Block-Start: {\"id\":\"x\"} -->\n```python\na=1\n```\n<!-- Block-End: {\"id\":\"x\"} -->", false)

	res := r.Parse("<!-- Block-Start: {\"id\":\"x\"} -->\n```python\nb=2\n```\n<!-- Block-End: {\"id\":\"x\"} -->", false)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrDuplicateID, res.Errors[0].Kind)
}

func TestParseExecTargetMissing(t *testing.T) {
	r := NewRegistry("python")
	res := r.Parse("<!-- Cmd-Exec: {\"id\":\"ghost\"} -->", false)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrExecTargetMissing, res.Errors[0].Kind)
}

func TestParseIDMismatch(t *testing.T) {
	r := NewRegistry("python")
	reply := "<!-- Block-Start: {\"id\":\"a\"} -->\n```python\nx=1\n```\n<!-- Block-End: {\"id\":\"b\"} -->"
	res := r.Parse(reply, false)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrIDMismatch, res.Errors[0].Kind)
	assert.Empty(t, res.NewBlocks)
}

func TestParseUnknownCommand(t *testing.T) {
	r := NewRegistry("python")
	res := r.Parse(`<!-- Cmd-Bogus: {"id":"a"} -->`, false)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrUnknownCommand, res.Errors[0].Kind)
}

func TestParseExecOrdering(t *testing.T) {
	r := NewRegistry("python")
	reply := `
<!-- Block-Start: {"id":"a"} -->
` + "```python\nA\n```" + `
<!-- Block-End: {"id":"a"} -->
<!-- Block-Start: {"id":"b"} -->
` + "```python\nB\n```" + `
<!-- Block-End: {"id":"b"} -->
<!-- Block-Start: {"id":"c"} -->
` + "```python\nC\n```" + `
<!-- Block-End: {"id":"c"} -->
<!-- Cmd-Exec: {"id":"c"} -->
<!-- Cmd-Exec: {"id":"a"} -->
<!-- Cmd-Exec: {"id":"b"} -->
`
	res := r.Parse(reply, false)
	require.Len(t, res.ExecBlock, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{res.ExecBlock[0].ID, res.ExecBlock[1].ID, res.ExecBlock[2].ID})
}

func TestParseWritesPath(t *testing.T) {
	dir := t.TempDir()
	rel := filepath.Join(dir, "nested", "out.txt")
	r := NewRegistry("python")
	reply := "<!-- Block-Start: {\"id\":\"b1\",\"path\":\"" + rel + "\"} -->\n```python\nhello\n```\n<!-- Block-End: {\"id\":\"b1\"} -->"
	res := r.Parse(reply, false)
	require.Empty(t, res.Errors)

	data, err := os.ReadFile(rel)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestParseToolCallFallback(t *testing.T) {
	r := NewRegistry("python")
	reply := "Here:\n```json\n{\"action\":\"call_tool\",\"name\":\"search\",\"arguments\":{\"q\":\"x\"}}\n```\n"
	res := r.Parse(reply, true)
	require.Empty(t, res.NewBlocks)
	require.NotEmpty(t, res.ToolCall)
	assert.Contains(t, res.ToolCall, "\"name\":\"search\"")
}

func TestParseToolCallFallbackSkippedWhenBlocksPresent(t *testing.T) {
	r := NewRegistry("python")
	reply := "<!-- Block-Start: {\"id\":\"b1\"} -->\n```python\npass\n```\n<!-- Block-End: {\"id\":\"b1\"} -->\n" +
		"```json\n{\"action\":\"call_tool\",\"name\":\"search\"}\n```"
	res := r.Parse(reply, true)
	assert.Empty(t, res.ToolCall)
}

func TestParseDeterminism(t *testing.T) {
	reply := "<!-- Block-Start: {\"id\":\"b1\"} -->\n```python\npass\n```\n<!-- Block-End: {\"id\":\"b1\"} -->"
	r1 := NewRegistry("python")
	r2 := NewRegistry("python")
	res1 := r1.Parse(reply, false)
	res2 := r2.Parse(reply, false)
	assert.Equal(t, res1.NewBlocks, res2.NewBlocks)
}

func TestToList(t *testing.T) {
	r := NewRegistry("python")
	r.Parse("<!-- Block-Start: {\"id\":\"a\"} -->\n```python\n1\n```\n<!-- Block-End: {\"id\":\"a\"} -->", false)
	r.Parse("<!-- Block-Start: {\"id\":\"b\"} -->\n```python\n2\n```\n<!-- Block-End: {\"id\":\"b\"} -->", false)
	list := r.ToList()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}
