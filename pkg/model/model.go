// Package model defines the shared value types that flow through the
// amendment reconstruction pipeline: bill chunks, target articles,
// amendment operations, located/linked/resolved references, and the
// final annotated legal states. Every pipeline stage package depends on
// model; model depends on nothing else in this module.
package model

import "encoding/json"

// OperationType classifies the kind of change a TargetArticle undergoes.
type OperationType string

const (
	OpInsert    OperationType = "INSERT"
	OpModify    OperationType = "MODIFY"
	OpAbrogate  OperationType = "ABROGATE"
	OpRenumber  OperationType = "RENUMBER"
	OpOther     OperationType = "OTHER"
)

// BillChunk is one atomic amendment unit produced by the splitter.
type BillChunk struct {
	Text       string   `json:"text"`
	TitreText  string   `json:"titre_text,omitempty"`
	ArticleLabel string `json:"article_label,omitempty"`

	ArticleIntro            string `json:"article_introductory_phrase,omitempty"`
	MajorSubdivisionLabel   string `json:"major_subdivision_label,omitempty"`
	MajorSubdivisionIntro   string `json:"major_subdivision_introductory_phrase,omitempty"`
	NumberedPointLabel      string `json:"numbered_point_label,omitempty"`
	NumberedPointIntro      string `json:"numbered_point_introductory_phrase,omitempty"`
	LetteredSubdivisionLabel string `json:"lettered_subdivision_label,omitempty"`

	HierarchyPath []string `json:"hierarchy_path"`
	ChunkID       string   `json:"chunk_id"`

	StartPos int `json:"start_pos"`
	EndPos   int `json:"end_pos"`

	TargetArticle          *TargetArticle `json:"target_article,omitempty"`
	InheritedTargetArticle *TargetArticle `json:"inherited_target_article,omitempty"`
}

// TargetArticle identifies which article a chunk modifies.
type TargetArticle struct {
	OperationType OperationType `json:"operation_type"`
	Code          string        `json:"code,omitempty"`
	Article       string        `json:"article,omitempty"`
	Confidence    float64       `json:"confidence"`
}

// IsTargetable reports whether this target carries enough information
// (non-OTHER, code, article present) to proceed past identifier gating
// at the given confidence threshold.
func (t *TargetArticle) IsTargetable(threshold float64) bool {
	if t == nil {
		return false
	}
	if t.OperationType == OpOther {
		return false
	}
	if t.Code == "" || t.Article == "" {
		return false
	}
	return t.Confidence >= threshold
}

// ReconstructorOutput is the three-field focused delta produced by the
// amendment reconstructor for one chunk.
type ReconstructorOutput struct {
	DeletedOrReplacedText     string `json:"deleted_or_replaced_text"`
	NewlyInsertedText         string `json:"newly_inserted_text"`
	IntermediateAfterStateText string `json:"intermediate_after_state_text"`
}

// AmendmentOperationType enumerates atomic edit kinds.
type AmendmentOperationType string

const (
	AmendReplace   AmendmentOperationType = "REPLACE"
	AmendDelete    AmendmentOperationType = "DELETE"
	AmendInsert    AmendmentOperationType = "INSERT"
	AmendAdd       AmendmentOperationType = "ADD"
	AmendRewrite   AmendmentOperationType = "REWRITE"
	AmendAbrogate  AmendmentOperationType = "ABROGATE"
)

// PositionHint is the parsed form of the JSON position-hint grammar
// (spec.md §6). Multiple fields may be set simultaneously (e.g. a
// structural anchor plus a sentence position).
type PositionHint struct {
	Type string `json:"type,omitempty"` // "alinea" | "structure"

	// Alinea anchor.
	AlineaIndex json.RawMessage `json:"index,omitempty"` // int | "last" | "prev"

	// Structural anchor.
	Section       string `json:"section,omitempty"`
	SectionSuffix string `json:"section_suffix,omitempty"`
	Point         string `json:"point,omitempty"`
	PointSuffix   string `json:"point_suffix,omitempty"`
	Placement     string `json:"placement,omitempty"` // after|before|at|at_end|at_start

	// Token anchor.
	AfterWord    string `json:"after_word,omitempty"`
	AfterWords   string `json:"after_words,omitempty"`
	BeforeWord   string `json:"before_word,omitempty"`
	BeforeWords  string `json:"before_words,omitempty"`
	Scope        string `json:"scope,omitempty"` // sentence|paragraph
	TokenAction  string `json:"token_action,omitempty"`

	// Sentence position.
	SentencePosition string `json:"sentence_position,omitempty"`
}

// AlineaIndexValue decodes the Index field into either an int n
// (ok=true), or one of the string sentinels "last"/"prev" returned in
// sentinel (ok=true), or reports not-present (ok=false).
func (h *PositionHint) AlineaIndexValue() (n int, sentinel string, ok bool) {
	if h == nil || len(h.AlineaIndex) == 0 {
		return 0, "", false
	}
	var asInt int
	if err := json.Unmarshal(h.AlineaIndex, &asInt); err == nil {
		return asInt, "", true
	}
	var asStr string
	if err := json.Unmarshal(h.AlineaIndex, &asStr); err == nil {
		return 0, asStr, true
	}
	return 0, "", false
}

// AmendmentOperation is one atomic edit within a chunk's instruction.
type AmendmentOperation struct {
	OperationType    AmendmentOperationType `json:"operation_type"`
	TargetText       string                 `json:"target_text,omitempty"`
	ReplacementText  string                 `json:"replacement_text,omitempty"`
	PositionHintRaw  string                 `json:"position_hint,omitempty"`
	PositionHint     *PositionHint          `json:"-"`
	SequenceOrder    int                    `json:"sequence_order"`
	ConfidenceScore  float64                `json:"confidence_score"`
}

// Validate checks the per-operation-type invariants from spec.md §3.
func (op *AmendmentOperation) Validate() error {
	switch op.OperationType {
	case AmendReplace:
		if op.TargetText == "" || op.ReplacementText == "" {
			return errInvalidOperation("REPLACE requires both target_text and replacement_text")
		}
	case AmendRewrite:
		if op.ReplacementText == "" {
			return errInvalidOperation("REWRITE requires replacement_text")
		}
	case AmendInsert, AmendAdd:
		if op.ReplacementText == "" {
			return errInvalidOperation(string(op.OperationType) + " requires replacement_text")
		}
	case AmendDelete, AmendAbrogate:
		// target_text may be null/empty.
	default:
		return errInvalidOperation("unknown operation type: " + string(op.OperationType))
	}
	return nil
}

type invalidOperationError string

func (e invalidOperationError) Error() string { return string(e) }

func errInvalidOperation(msg string) error { return invalidOperationError(msg) }

// ReferenceSource tags whether a located reference lives in the removed
// (DELETIONAL) or newly inserted (DEFINITIONAL) delta fragment.
type ReferenceSource string

const (
	SourceDeletional  ReferenceSource = "DELETIONAL"
	SourceDefinitional ReferenceSource = "DEFINITIONAL"
)

// LocatedReference is a citation found in a delta fragment.
type LocatedReference struct {
	ReferenceText string          `json:"reference_text"`
	Source        ReferenceSource `json:"source"`
	Confidence    float64         `json:"confidence"`
	StartOffset   int             `json:"start_offset"`
	EndOffset     int             `json:"end_offset"`
}

// LinkedReference binds a located reference to its grammatical object.
type LinkedReference struct {
	LocatedReference
	Object              string `json:"object"`
	AgreementAnalysis   string `json:"agreement_analysis"`
	ResolutionQuestion  string `json:"resolution_question"`
}

// RetrievalMetadata records where resolved content came from.
type RetrievalMetadata struct {
	Source         string `json:"source"`
	ParentArticle  string `json:"parent_article,omitempty"`
	Subsection     string `json:"subsection,omitempty"`
	Method         string `json:"method,omitempty"`
	CacheHit       bool   `json:"cache_hit"`
}

// ResolvedReference is a linked reference with fetched and carved content.
type ResolvedReference struct {
	LinkedReference   LinkedReference   `json:"linked_reference"`
	ResolvedContent   string            `json:"resolved_content"`
	RetrievalMetadata RetrievalMetadata `json:"retrieval_metadata"`
}

// UnresolvedReference is a linked reference that could not be resolved.
type UnresolvedReference struct {
	LinkedReference LinkedReference `json:"linked_reference"`
	Error           string          `json:"error"`
}

// ResolutionResult groups resolver outputs for one chunk.
type ResolutionResult struct {
	ResolvedDeletional   []ResolvedReference    `json:"resolved_deletional"`
	ResolvedDefinitional []ResolvedReference    `json:"resolved_definitional"`
	Unresolved           []UnresolvedReference  `json:"unresolved"`
	ResolutionTree       map[string]interface{} `json:"resolution_tree"`
}

// LegalReferenceAnnotation is one footnote entry in a synthesized fragment.
type LegalReferenceAnnotation struct {
	MarkerIndex       int               `json:"marker_index"`
	ReferenceText     string            `json:"reference_text"`
	Object            string            `json:"object"`
	ResolvedContent   string            `json:"resolved_content"`
	Source            ReferenceSource   `json:"source"`
	StartOffset       int               `json:"start_offset"`
	EndOffset         int               `json:"end_offset"`
	RetrievalMetadata RetrievalMetadata `json:"retrieval_metadata"`
}

// LegalState is an annotated fragment: rendered text plus ordered footnotes.
type LegalState struct {
	Text        string                     `json:"text"`
	Annotations []LegalReferenceAnnotation `json:"annotations"`
}

// LegalAnalysisOutput is the per-chunk final artifact.
type LegalAnalysisOutput struct {
	ChunkID      string                 `json:"chunk_id"`
	BeforeState  LegalState             `json:"before_state"`
	AfterState   LegalState             `json:"after_state"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// FailedOperation pairs an operation that could not be applied with the
// error message explaining why. Op is nil for failures that occur before
// or outside any single operation (e.g. a validation system error).
type FailedOperation struct {
	Op    *AmendmentOperation `json:"operation,omitempty"`
	Error string              `json:"error"`
}

// ReconstructionResult is the outcome of applying an ordered set of
// AmendmentOperations to an article's original text and validating the
// result, produced by pkg/reconstruct.
type ReconstructionResult struct {
	Success             bool                   `json:"success"`
	FinalText           string                 `json:"final_text"`
	OperationsApplied   []AmendmentOperation   `json:"operations_applied"`
	OperationsFailed    []FailedOperation      `json:"operations_failed"`
	OriginalTextLength  int                    `json:"original_text_length"`
	FinalTextLength     int                    `json:"final_text_length"`
	ProcessingTimeMs    int64                  `json:"processing_time_ms"`
	ValidationWarnings  []string               `json:"validation_warnings"`
}

// FailedChunk is the structured failure record for a chunk that could not
// produce a LegalAnalysisOutput.
type FailedChunk struct {
	ChunkID       string   `json:"chunk_id"`
	TextPreview   string   `json:"text_preview"`
	HierarchyPath []string `json:"hierarchy_path"`
	Error         string   `json:"error"`
	SkipReason    string   `json:"skip_reason,omitempty"`
}
