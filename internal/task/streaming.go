package task

import "strings"

// lineBuffer accumulates arbitrary streamed fragments and yields only
// complete lines, mirroring the source's LineReader: a streaming chunk may
// split a marker comment across two deltas, so filtering must operate on
// whole lines rather than raw fragments.
type lineBuffer struct {
	partial string
}

// feed appends delta and returns every newly completed line (trailing
// newline stripped), keeping any trailing partial line buffered.
func (b *lineBuffer) feed(delta string) []string {
	if delta == "" {
		return nil
	}
	b.partial += delta
	if !strings.Contains(b.partial, "\n") {
		return nil
	}
	lines := strings.Split(b.partial, "\n")
	b.partial = lines[len(lines)-1]
	return lines[:len(lines)-1]
}

// drain flushes any remaining partial content as a final line, used when
// the stream ends.
func (b *lineBuffer) drain() []string {
	if b.partial == "" {
		return nil
	}
	line := b.partial
	b.partial = ""
	return []string{line}
}

// filterControlMarkerLines drops lines that open a block or command
// marker comment, matching the source's process_chunk filter
// (`not line.startswith('<!-- Block-')` / `'<!-- Cmd-'`). Returns the
// remaining lines rejoined with "\n", or "" if everything was filtered.
func filterControlMarkerLines(lines []string) string {
	kept := lines[:0:0]
	for _, line := range lines {
		if strings.HasPrefix(line, "<!-- Block-") || strings.HasPrefix(line, "<!-- Cmd-") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
