package pipeline

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/coolbeans/regula/pkg/model"
)

// ChunkRecord is one line of a chunk ndjson export. Grounded on
// export_chunks.py's index.json entries ({chunk_id, hierarchy_path,
// text_preview}), with the full chunk text folded in: the original wrote
// one .txt/.json sidecar pair per chunk plus a summary index.json, which
// this pipeline redesigns as a single newline-delimited JSON stream so
// a split --export run produces one file regardless of chunk count.
type ChunkRecord struct {
	ChunkID       string   `json:"chunk_id"`
	HierarchyPath []string `json:"hierarchy_path"`
	TextPreview   string   `json:"text_preview"`
	Text          string   `json:"text"`
}

const chunkPreviewLen = 200

// WriteChunksNDJSON writes chunks to path as newline-delimited JSON, one
// ChunkRecord per line, matching export_chunks.py's chunk_id/
// hierarchy_path/text_preview fields.
func WriteChunksNDJSON(path string, chunks []model.BillChunk) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		record := ChunkRecord{
			ChunkID:       c.ChunkID,
			HierarchyPath: c.HierarchyPath,
			TextPreview:   truncatePreview(c.Text, chunkPreviewLen),
			Text:          c.Text,
		}
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return w.Flush()
}

func truncatePreview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
