// Package reconstruct implements LegalAmendmentReconstructor: the
// orchestrator that decomposes a chunk's amendment instruction, applies
// each resulting operation in sequence against the article's original
// text, and validates the final result for legal coherence (spec.md
// §3.4-§3.6). It is the 3-step pipeline at the heart of the amendment
// reconstruction system — InstructionDecomposer, OperationApplier,
// ResultValidator — wired together with per-operation error isolation
// and a detailed audit log of every reconstruction attempt.
package reconstruct

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coolbeans/regula/pkg/apply"
	"github.com/coolbeans/regula/pkg/decompose"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/validate"
)

// Reconstructor runs the decompose/apply/validate pipeline for one
// article's amendment instruction, logging every attempt to an append
// mode audit file.
type Reconstructor struct {
	decomposer *decompose.Decomposer
	applier    *apply.Applier
	validator  *validate.ReconstructionValidator
	log        *zap.SugaredLogger

	logMu      sync.Mutex
	logPath    string
}

// New creates a Reconstructor from its three pipeline components, all of
// which may share a single cache and LLM client. logPath is the
// append-mode audit log file; it is truncated and given a fresh header
// at construction. An empty logPath disables file logging.
func New(decomposer *decompose.Decomposer, applier *apply.Applier, validator *validate.ReconstructionValidator, logPath string, log *zap.SugaredLogger) *Reconstructor {
	r := &Reconstructor{
		decomposer: decomposer,
		applier:    applier,
		validator:  validator,
		log:        log,
		logPath:    logPath,
	}
	r.initLogFile()
	return r
}

func (r *Reconstructor) initLogFile() {
	if r.logPath == "" {
		return
	}
	var header strings.Builder
	header.WriteString(strings.Repeat("=", 100) + "\n")
	header.WriteString("LEGAL AMENDMENT RECONSTRUCTOR - DETAILED LOG\n")
	header.WriteString(strings.Repeat("=", 100) + "\n")
	header.WriteString(fmt.Sprintf("Log initialized at: %s\n", time.Now().Format(time.RFC3339)))
	header.WriteString(fmt.Sprintf("Log file: %s\n", r.logPath))
	header.WriteString(strings.Repeat("=", 100) + "\n\n")

	if err := os.WriteFile(r.logPath, []byte(header.String()), 0o644); err != nil {
		r.warnf("failed to initialize reconstruction log file %s: %v", r.logPath, err)
	}
}

// SetLogFilePath switches to a new audit log file and reinitializes it.
func (r *Reconstructor) SetLogFilePath(logPath string) {
	r.logMu.Lock()
	r.logPath = logPath
	r.logMu.Unlock()
	r.initLogFile()
}

func (r *Reconstructor) warnf(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Warnf(format, args...)
	}
}

func (r *Reconstructor) infof(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Infof(format, args...)
	}
}

func (r *Reconstructor) debugf(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Debugf(format, args...)
	}
}

// ReconstructAmendment runs the full 3-step pipeline: decompose
// instruction into operations, apply each sequentially (isolating
// failures so one bad operation never aborts the rest), then validate
// the final text for legal coherence. chunkID is used only for audit
// logging.
func (r *Reconstructor) ReconstructAmendment(ctx context.Context, originalLawArticle, amendmentInstruction, targetArticleReference, chunkID string) *model.ReconstructionResult {
	if chunkID == "" {
		chunkID = "unknown"
	}
	start := time.Now()

	// INSERT operations legitimately start from empty original text.
	isInsert := strings.TrimSpace(originalLawArticle) == ""
	if isInsert {
		r.infof("processing INSERT operation for %s - original text is empty as expected", targetArticleReference)
		originalLawArticle = ""
	}

	r.infof("starting amendment reconstruction for article %s", targetArticleReference)

	var operationsApplied []model.AmendmentOperation
	var operationsFailed []model.FailedOperation
	currentText := originalLawArticle
	var stepStates []string

	operations, err := r.decomposer.ParseInstruction(ctx, amendmentInstruction)
	if err != nil || len(operations) == 0 {
		r.warnf("no operations extracted from instruction for %s: %v", targetArticleReference, err)
		result := &model.ReconstructionResult{
			Success:            false,
			FinalText:          originalLawArticle,
			OperationsFailed:   []model.FailedOperation{{Error: "no operations could be extracted from instruction"}},
			OriginalTextLength: len(originalLawArticle),
			FinalTextLength:    len(originalLawArticle),
			ProcessingTimeMs:   time.Since(start).Milliseconds(),
			ValidationWarnings: []string{"No operations found in instruction"},
		}
		r.writeLogEntry(chunkID, targetArticleReference, originalLawArticle, amendmentInstruction, operations, result, nil, stepStates)
		return result
	}

	r.infof("decomposed into %d atomic operations for %s", len(operations), targetArticleReference)

	for i, operation := range operations {
		r.debugf("applying operation %d/%d: %s", i+1, len(operations), operation.OperationType)

		opResult := r.applier.ApplySingleOperation(ctx, currentText, operation)
		opCopy := operation
		if opResult.Success {
			currentText = opResult.ModifiedText
			operationsApplied = append(operationsApplied, operation)
			stepStates = append(stepStates, currentText)
			r.debugf("operation %d succeeded (confidence: %.2f)", i+1, opResult.Confidence)
		} else {
			errMsg := opResult.ErrorMessage
			if errMsg == "" {
				errMsg = "unknown error"
			}
			operationsFailed = append(operationsFailed, model.FailedOperation{Op: &opCopy, Error: errMsg})
			stepStates = append(stepStates, currentText)
			r.warnf("operation %d failed for %s: %s", i+1, targetArticleReference, errMsg)
		}
	}

	validation := r.validator.ValidateLegalCoherence(ctx, originalLawArticle, currentText, operationsApplied)

	processingTime := time.Since(start).Milliseconds()
	success := len(operationsFailed) == 0 && validation.ValidationStatus != "ERRORS"

	result := &model.ReconstructionResult{
		Success:            success,
		FinalText:          currentText,
		OperationsApplied:  operationsApplied,
		OperationsFailed:   operationsFailed,
		OriginalTextLength: len(originalLawArticle),
		FinalTextLength:    len(currentText),
		ProcessingTimeMs:   processingTime,
		ValidationWarnings: extractValidationWarnings(validation),
	}

	r.infof("reconstruction completed for %s - success: %v, applied: %d/%d, validation: %s (%dms)",
		targetArticleReference, success, len(operationsApplied), len(operations), validation.ValidationStatus, processingTime)

	r.writeLogEntry(chunkID, targetArticleReference, originalLawArticle, amendmentInstruction, operations, result, validation, stepStates)
	return result
}

func extractValidationWarnings(v *validate.CoherenceResult) []string {
	var warnings []string
	for _, e := range v.CriticalErrors {
		warnings = append(warnings, "CRITICAL: "+e)
	}
	for _, e := range v.MajorErrors {
		warnings = append(warnings, "MAJOR: "+e)
	}
	for _, e := range v.MinorErrors {
		warnings = append(warnings, "MINOR: "+e)
	}
	for _, s := range v.Suggestions {
		warnings = append(warnings, "SUGGESTION: "+s)
	}
	if v.ValidationSummary != "" {
		warnings = append(warnings, "SUMMARY: "+v.ValidationSummary)
	}
	return warnings
}

// writeLogEntry appends a detailed, human-readable record of one
// reconstruction attempt to the audit log file. Failures to write are
// logged but never propagated — the audit log is best-effort and must
// never abort a reconstruction.
func (r *Reconstructor) writeLogEntry(chunkID, targetArticleReference, originalLawArticle, amendmentInstruction string, operations []model.AmendmentOperation, result *model.ReconstructionResult, validation *validate.CoherenceResult, stepStates []string) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	if r.logPath == "" {
		return
	}

	var b strings.Builder
	b.WriteString("\n" + strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "RECONSTRUCTION ENTRY - %s\n", time.Now().Format(time.RFC3339))
	b.WriteString(strings.Repeat("=", 80) + "\n")

	fmt.Fprintf(&b, "CHUNK ID: %s\n", chunkID)
	fmt.Fprintf(&b, "TARGET ARTICLE: %s\n", targetArticleReference)
	fmt.Fprintf(&b, "SUCCESS: %v\n", result.Success)
	fmt.Fprintf(&b, "PROCESSING TIME: %dms\n", result.ProcessingTimeMs)
	fmt.Fprintf(&b, "OPERATIONS APPLIED: %d/%d\n", len(result.OperationsApplied), len(operations))
	fmt.Fprintf(&b, "OPERATIONS FAILED: %d\n\n", len(result.OperationsFailed))

	b.WriteString(strings.Repeat("-", 40) + " ORIGINAL LEGAL TEXT " + strings.Repeat("-", 40) + "\n")
	fmt.Fprintf(&b, "Length: %d characters\n", len(originalLawArticle))
	fmt.Fprintf(&b, "Text:\n%s\n\n", originalLawArticle)

	b.WriteString(strings.Repeat("-", 40) + " AMENDMENT INSTRUCTION " + strings.Repeat("-", 39) + "\n")
	fmt.Fprintf(&b, "Length: %d characters\n", len(amendmentInstruction))
	fmt.Fprintf(&b, "Text:\n%s\n\n", amendmentInstruction)

	b.WriteString(strings.Repeat("-", 40) + " DECOMPOSED OPERATIONS " + strings.Repeat("-", 39) + "\n")
	fmt.Fprintf(&b, "Total operations: %d\n", len(operations))
	for i, op := range operations {
		fmt.Fprintf(&b, "\nOperation %d:\n", i+1)
		fmt.Fprintf(&b, "  Type: %s\n", op.OperationType)
		fmt.Fprintf(&b, "  Position: %s\n", op.PositionHintRaw)
		fmt.Fprintf(&b, "  Target Text: %s\n", orNA(op.TargetText))
		fmt.Fprintf(&b, "  Replacement Text: %s\n", orNA(op.ReplacementText))
		fmt.Fprintf(&b, "  Sequence Order: %d\n", op.SequenceOrder)
		fmt.Fprintf(&b, "  Confidence: %.3f\n", op.ConfidenceScore)
	}
	b.WriteString("\n")

	if len(stepStates) > 0 {
		b.WriteString(strings.Repeat("-", 40) + " STEP-BY-STEP APPLICATION " + strings.Repeat("-", 33) + "\n")
		fmt.Fprintf(&b, "State 0 (Original):\n%s\n\n", originalLawArticle)
		for i, state := range stepStates {
			fmt.Fprintf(&b, "State %d (After Operation %d):\n%s\n\n", i+1, i+1, state)
		}
	}

	b.WriteString(strings.Repeat("-", 40) + " FINAL RECONSTRUCTED TEXT " + strings.Repeat("-", 35) + "\n")
	fmt.Fprintf(&b, "Length: %d characters\n", len(result.FinalText))
	fmt.Fprintf(&b, "Length change: %+d characters\n", result.FinalTextLength-result.OriginalTextLength)
	fmt.Fprintf(&b, "Text:\n%s\n\n", result.FinalText)

	b.WriteString(strings.Repeat("-", 40) + " BEFORE/AFTER COMPARISON " + strings.Repeat("-", 36) + "\n")
	fmt.Fprintf(&b, "BEFORE:\n%s\n\nAFTER:\n%s\n\n", originalLawArticle, result.FinalText)

	if len(result.OperationsApplied) > 0 {
		b.WriteString(strings.Repeat("-", 40) + " SUCCESSFUL OPERATIONS " + strings.Repeat("-", 39) + "\n")
		for i, op := range result.OperationsApplied {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, op.OperationType, op.PositionHintRaw)
		}
		b.WriteString("\n")
	}

	if len(result.OperationsFailed) > 0 {
		b.WriteString(strings.Repeat("-", 40) + " FAILED OPERATIONS " + strings.Repeat("-", 43) + "\n")
		for i, failure := range result.OperationsFailed {
			if failure.Op != nil {
				fmt.Fprintf(&b, "%d. %s - %s\n   Error: %s\n", i+1, failure.Op.OperationType, failure.Op.PositionHintRaw, failure.Error)
			} else {
				fmt.Fprintf(&b, "%d. System Error: %s\n", i+1, failure.Error)
			}
		}
		b.WriteString("\n")
	}

	if validation != nil {
		b.WriteString(strings.Repeat("-", 40) + " VALIDATION RESULTS " + strings.Repeat("-", 42) + "\n")
		fmt.Fprintf(&b, "Status: %s\n", validation.ValidationStatus)
		fmt.Fprintf(&b, "Overall Score: %.3f\n", validation.OverallScore)
		fmt.Fprintf(&b, "Summary: %s\n", validation.ValidationSummary)
		writeErrorList(&b, "Critical Errors", validation.CriticalErrors)
		writeErrorList(&b, "Major Errors", validation.MajorErrors)
		writeErrorList(&b, "Minor Errors", validation.MinorErrors)
		writeErrorList(&b, "Suggestions", validation.Suggestions)
		b.WriteString("\n")
	}

	if len(result.ValidationWarnings) > 0 {
		b.WriteString(strings.Repeat("-", 40) + " VALIDATION WARNINGS " + strings.Repeat("-", 41) + "\n")
		for _, w := range result.ValidationWarnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
		b.WriteString("\n")
	}

	b.WriteString(strings.Repeat("-", 40) + " SUMMARY STATISTICS " + strings.Repeat("-", 42) + "\n")
	fmt.Fprintf(&b, "Original text length: %d chars\n", result.OriginalTextLength)
	fmt.Fprintf(&b, "Final text length: %d chars\n", result.FinalTextLength)
	fmt.Fprintf(&b, "Length change: %+d chars\n", result.FinalTextLength-result.OriginalTextLength)
	fmt.Fprintf(&b, "Operations attempted: %d\n", len(operations))
	fmt.Fprintf(&b, "Operations successful: %d\n", len(result.OperationsApplied))
	fmt.Fprintf(&b, "Operations failed: %d\n", len(result.OperationsFailed))
	if len(operations) > 0 {
		fmt.Fprintf(&b, "Success rate: %.1f%%\n", float64(len(result.OperationsApplied))/float64(len(operations))*100)
	} else {
		b.WriteString("Success rate: N/A\n")
	}
	fmt.Fprintf(&b, "Processing time: %dms\n", result.ProcessingTimeMs)
	fmt.Fprintf(&b, "Overall success: %v\n", result.Success)
	b.WriteString("\n" + strings.Repeat("=", 80) + "\n")

	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		r.warnf("failed to write reconstruction details to log file: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(b.String()); err != nil {
		r.warnf("failed to write reconstruction details to log file: %v", err)
	}
}

func writeErrorList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d):\n", label, len(items))
	for _, item := range items {
		fmt.Fprintf(b, "  - %s\n", item)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
