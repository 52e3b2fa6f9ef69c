package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ExportMetadata is the top-level "metadata" object spec.md §6 requires
// in every serialized pipeline result. RunID identifies one invocation
// of the pipeline; it is written only into this metadata, not into
// cache entries or the reconstruction log.
type ExportMetadata struct {
	GeneratedAt     string   `json:"generated_at"`
	RunID           string   `json:"run_id"`
	TotalChunks     int      `json:"total_chunks"`
	PipelineVersion string   `json:"pipeline_version"`
	PipelineSteps   []string `json:"pipeline_steps"`
}

// Export is the full JSON-serializable pipeline result, grounded on
// run_full_pipeline's pipeline_results dict.
type Export struct {
	Metadata ExportMetadata `json:"metadata"`
	Result   *Result        `json:"result"`
}

var pipelineSteps = []string{
	"BillSplitter",
	"TargetArticleIdentifier",
	"OriginalTextRetriever",
	"LegalAmendmentReconstructor",
	"ReferenceLocator",
	"ReferenceObjectLinker",
	"ReferenceResolver",
	"LegalStateSynthesizer",
}

// ToExport wraps a Result with the metadata envelope. generatedAt and
// runID are supplied by the caller (cmd/amendex passes
// time.Now().UTC().Format(time.RFC3339) and uuid.NewString()) rather
// than stamped here, so this stays a pure function of its inputs and
// tests can assert on fixed values.
func (r *Result) ToExport(generatedAt, runID string) Export {
	return Export{
		Metadata: ExportMetadata{
			GeneratedAt:     generatedAt,
			RunID:           runID,
			TotalChunks:     r.TotalChunks,
			PipelineVersion: "1.0",
			PipelineSteps:   pipelineSteps,
		},
		Result: r,
	}
}

// WriteJSON marshals the export with indentation and writes it
// atomically (write-to-temp, then rename) so a reader never observes a
// partially written results file, matching the disk cache's
// atomic-by-rename discipline (spec.md §5).
func WriteJSON(path string, export Export) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pipeline-result-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// DefaultResultFilename builds a timestamped filename for a saved
// result, grounded on save_results' "{prefix}_{timestamp}.json" naming.
func DefaultResultFilename(prefix string, at time.Time) string {
	return prefix + "_" + at.Format("20060102_150405") + ".json"
}
