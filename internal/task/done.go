package task

import (
	"fmt"
	"os"

	"github.com/aipy-go/aipy/internal/observability"
)

// Done finalizes the task: writes the JSON/HTML artifact snapshot under
// the task id, renames both to an instruction-derived sanitized name,
// reports any collected execution errors to the diagnostics collaborator,
// and marks the task done. Rename failures are logged, not treated as
// fatal, matching the source's done().
func (t *Task) Done(htmlTranscript string) {
	jsonName := t.ID + ".json"
	htmlName := t.ID + ".html"

	snap := snapshot{
		Instruction: t.instruction,
		Chats:       t.history.Messages(),
		Runner:      t.runtime.History(),
		Blocks:      t.registry.ToList(),
	}
	if err := writeSnapshot(jsonName, snap); err != nil {
		t.logger.Error("error writing task snapshot", "id", t.ID, "error", err)
	}
	if htmlTranscript != "" {
		if err := writeArtifact(htmlName, htmlTranscript); err != nil {
			t.logger.Error("error writing task html", "id", t.ID, "error", err)
		}
	}

	safeJSON := safeFilename(t.instruction, ".json")
	if err := renameArtifact(jsonName, safeJSON); err != nil {
		t.logger.Error("error renaming task json file", "id", t.ID, "error", err)
	}
	safeHTML := safeFilename(t.instruction, ".html")
	if err := renameArtifact(htmlName, safeHTML); err != nil {
		t.logger.Error("error renaming task html file", "id", t.ID, "error", err)
	}

	for i := range t.codeErrors {
		observability.EmitCodeError(&t.codeErrors[i])
	}

	t.logger.Info("task done", "id", t.ID, "json", safeJSON, "html", safeHTML)
}

func writeArtifact(path, content string) error {
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
