// Package pipeline wires every stage — BillSplitter, TargetArticleIdentifier,
// OriginalTextRetriever, LegalAmendmentReconstructor, ReferenceLocator,
// ReferenceObjectLinker, ReferenceResolver, LegalStateSynthesizer — into the
// single-threaded, document-order pipeline described in spec.md §5, grounded
// on BillProcessingPipeline's step_1..step_8 method chain
// (bill_parser_engine/core/reference_resolver/pipeline.py). Chunks are
// processed independently: a failure isolated to one chunk never aborts the
// run, and every chunk yields either a LegalAnalysisOutput or a structured
// FailedChunk record.
package pipeline

import "fmt"

// InputError marks an invalid or empty bill, or a required field missing
// from an intermediate artifact (e.g. a chunk with no target article where
// one is required downstream). Fatal only to the offending chunk, except
// when raised for the bill itself, which aborts the run before any chunk
// is produced.
type InputError struct {
	Msg string
}

func (e InputError) Error() string { return "input error: " + e.Msg }

// RetrievalError marks a corpus or remote lookup failure. Non-fatal: the
// retriever already returns empty text with its own success=false
// RetrievalMetadata, so this type exists for pipeline-level reporting
// only, wrapping that metadata's reason into an error for the failed
// reconstruction result.
type RetrievalError struct {
	ArticleKey string
	Reason     string
}

func (e RetrievalError) Error() string {
	return fmt.Sprintf("retrieval error for %s: %s", e.ArticleKey, e.Reason)
}

// DecomposeError marks a chunk whose amendment instruction could not be
// decomposed into any atomic operation. Fatal only to that chunk's
// reconstruction; the chunk still yields a FailedChunk record rather than
// aborting the run.
type DecomposeError struct {
	ChunkID string
	Reason  string
}

func (e DecomposeError) Error() string {
	return fmt.Sprintf("decompose error in chunk %s: %s", e.ChunkID, e.Reason)
}

// ApplyError marks an operation-level failure recorded in
// ReconstructionResult.OperationsFailed. Isolated to that operation; other
// operations in the same chunk continue (pkg/reconstruct already does
// this); this type exists so the pipeline can classify a chunk whose
// reconstruction applied no operation at all.
type ApplyError struct {
	ChunkID string
	Reason  string
}

func (e ApplyError) Error() string {
	return fmt.Sprintf("apply error in chunk %s: %s", e.ChunkID, e.Reason)
}

// ValidateError marks the validator itself failing rather than flagging
// the reconstructed text — surfaces as an ERRORS ValidationResult with a
// system-error summary. Does not abort the chunk; the chunk's
// reconstruction is simply marked unsuccessful.
type ValidateError struct {
	ChunkID string
	Reason  string
}

func (e ValidateError) Error() string {
	return fmt.Sprintf("validate error in chunk %s: %s", e.ChunkID, e.Reason)
}

// ReferenceError marks a per-reference failure in location, linking, or
// resolution. Isolated to that single reference; the pipeline records it
// in the chunk's unresolved list rather than failing the chunk.
type ReferenceError struct {
	ChunkID       string
	ReferenceText string
	Reason        string
}

func (e ReferenceError) Error() string {
	return fmt.Sprintf("reference error in chunk %s (%q): %s", e.ChunkID, e.ReferenceText, e.Reason)
}

// SynthesisError marks a deterministic failure inside LegalStateSynthesizer
// (e.g. an unexpected reconstruction shape). Fatal to the chunk; other
// chunks proceed.
type SynthesisError struct {
	ChunkID string
	Reason  string
}

func (e SynthesisError) Error() string {
	return fmt.Sprintf("synthesis error in chunk %s: %s", e.ChunkID, e.Reason)
}
