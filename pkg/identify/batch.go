package identify

import (
	"context"
	"fmt"
	"sort"

	"github.com/coolbeans/regula/pkg/model"
)

// BatchResult summarizes a run of Identify over many chunks: how many
// resolved cleanly at each operation type, how many were gated out by
// the confidence threshold, and the confidence distribution. Grounded
// on check_identification_batch.py, which re-derives an expected article
// per chunk and reports "{ok}/{tested} matched" plus a handful of
// mismatches; this port drops the mismatch comparison (there is no
// separate expected-article oracle in this pipeline) and keeps the
// aggregate histogram the script prints alongside it.
type BatchResult struct {
	Total               int                    `json:"total"`
	Tested              int                    `json:"tested"`
	Failed              int                    `json:"failed"`
	ByOperationType     map[string]int         `json:"by_operation_type"`
	GatedByConfidence    int                   `json:"gated_by_confidence"`
	MeanConfidence      float64                `json:"mean_confidence"`
	MinConfidence       float64                `json:"min_confidence"`
	MaxConfidence       float64                `json:"max_confidence"`
	Targets             []ChunkTarget          `json:"targets"`
}

// ChunkTarget pairs a chunk id with the TargetArticle identification
// resolved for it, for callers that want per-chunk detail alongside the
// aggregate histogram.
type ChunkTarget struct {
	ChunkID string               `json:"chunk_id"`
	Target  *model.TargetArticle `json:"target,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// IdentifyBatch runs Identify over every chunk and reports aggregate
// operation-type and confidence histograms, continuing past individual
// failures rather than aborting the whole batch — chunks that error are
// counted in Failed and recorded with their error in Targets.
func (id *Identifier) IdentifyBatch(ctx context.Context, chunks []model.BillChunk, confidenceThreshold float64) BatchResult {
	result := BatchResult{
		Total:           len(chunks),
		ByOperationType: map[string]int{},
		Targets:         make([]ChunkTarget, 0, len(chunks)),
	}

	var confidenceSum float64
	result.MinConfidence = 1
	result.MaxConfidence = 0

	for _, chunk := range chunks {
		target, err := id.Identify(ctx, chunk)
		if err != nil {
			result.Failed++
			result.Targets = append(result.Targets, ChunkTarget{ChunkID: chunk.ChunkID, Error: err.Error()})
			continue
		}

		result.Tested++
		result.ByOperationType[string(target.OperationType)]++
		if target.Confidence < confidenceThreshold {
			result.GatedByConfidence++
		}

		confidenceSum += target.Confidence
		if target.Confidence < result.MinConfidence {
			result.MinConfidence = target.Confidence
		}
		if target.Confidence > result.MaxConfidence {
			result.MaxConfidence = target.Confidence
		}
		result.Targets = append(result.Targets, ChunkTarget{ChunkID: chunk.ChunkID, Target: target})
	}

	if result.Tested > 0 {
		result.MeanConfidence = confidenceSum / float64(result.Tested)
	} else {
		result.MinConfidence = 0
	}

	return result
}

// Summary renders the same "{ok}/{tested} matched"-style one-liner the
// original script prints, substituting "identified" for "matched" since
// this port has no separate expected-article oracle to match against.
func (r BatchResult) Summary() string {
	types := make([]string, 0, len(r.ByOperationType))
	for t := range r.ByOperationType {
		types = append(types, t)
	}
	sort.Strings(types)

	breakdown := ""
	for _, t := range types {
		breakdown += fmt.Sprintf(" %s=%d", t, r.ByOperationType[t])
	}
	return fmt.Sprintf("%d/%d identified (%d failed, %d gated by confidence, mean confidence %.2f)%s",
		r.Tested, r.Total, r.Failed, r.GatedByConfidence, r.MeanConfidence, breakdown)
}
