package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/coolbeans/regula/pkg/apply"
	"github.com/coolbeans/regula/pkg/cache"
	"github.com/coolbeans/regula/pkg/config"
	"github.com/coolbeans/regula/pkg/corpus"
	"github.com/coolbeans/regula/pkg/decompose"
	"github.com/coolbeans/regula/pkg/identify"
	"github.com/coolbeans/regula/pkg/llm"
	"github.com/coolbeans/regula/pkg/logging"
	"github.com/coolbeans/regula/pkg/model"
	"github.com/coolbeans/regula/pkg/reconstruct"
	"github.com/coolbeans/regula/pkg/reflink"
	"github.com/coolbeans/regula/pkg/reflocate"
	"github.com/coolbeans/regula/pkg/refresolve"
	"github.com/coolbeans/regula/pkg/registry"
	"github.com/coolbeans/regula/pkg/splitter"
	"github.com/coolbeans/regula/pkg/synth"
	"github.com/coolbeans/regula/pkg/validate"
)

// Pipeline owns one instance of every stage and the shared singletons
// they depend on (cache, LLM client, article registry), and drives bills
// through all eight stages in document order.
type Pipeline struct {
	cfg *config.PipelineConfig
	log *zap.SugaredLogger

	splitter      *splitter.Splitter
	identifier    *identify.Identifier
	retriever     *corpus.Retriever
	reconstructor *reconstruct.Reconstructor
	locator       *reflocate.Locator
	linker        *reflink.Linker
	resolver      *refresolve.Resolver
	synthesizer   *synth.Synthesizer
	registry      *registry.Registry
}

// New assembles a Pipeline from the shared cache, LLM client, and
// article registry, and the already-constructed corpus retriever
// (which itself needs the registry and the same cache/client, so it is
// built by the caller rather than duplicated here). log may be nil, in
// which case stage-level diagnostics are discarded.
func New(cfg *config.PipelineConfig, client *llm.Client, c *cache.Cache, retriever *corpus.Retriever, reg *registry.Registry, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = logging.Noop()
	}
	decomposer := decompose.New(client, c)
	applier := apply.New(client, c)
	validator := validate.NewReconstructionValidator(client, c)
	reconstructor := reconstruct.New(decomposer, applier, validator, cfg.ReconstructionLog, logging.ForComponent(log, "reconstructor"))

	return &Pipeline{
		cfg:           cfg,
		log:           log,
		splitter:      splitter.New(),
		identifier:    identify.New(client, c),
		retriever:     retriever,
		reconstructor: reconstructor,
		locator:       reflocate.New(client, c).WithMinConfidence(cfg.ConfidenceThreshold),
		linker:        reflink.New(client, c),
		resolver:      refresolve.New(client, c, retriever, cfg.Corpus.EURegulationRoot),
		synthesizer:   synth.New(cfg.LegalState),
		registry:      reg,
	}
}

// Result is the complete output of one full pipeline run over a bill,
// per spec.md §6's "Pipeline result" shape.
type Result struct {
	TotalChunks int                        `json:"total_chunks"`
	Chunks      []model.BillChunk          `json:"-"`
	Outputs     []model.LegalAnalysisOutput `json:"legal_state_results"`
	Failed      []model.FailedChunk        `json:"failed_chunks"`
}

// chunkState threads one chunk's intermediate artifacts through the
// stage chain so each stage only needs the fields it actually consumes
// — the same "focused" data flow pipeline.py's step_N methods use.
type chunkState struct {
	chunk         model.BillChunk
	target        *model.TargetArticle
	originalText  string
	recon         model.ReconstructorOutput
	reconResult   *model.ReconstructionResult
	located       []model.LocatedReference
	linked        []model.LinkedReference
	resolution    model.ResolutionResult
}

// Run processes billText end to end: split, identify targets, retrieve
// original text, reconstruct, locate/link/resolve references, and
// synthesize before/after legal states. Chunks are processed
// independently in document order; a failure anywhere in one chunk's
// chain is recorded as a FailedChunk and processing continues with the
// next chunk, matching the "never abort the pipeline" policy
// (spec.md §7).
func (p *Pipeline) Run(ctx context.Context, billText string) (*Result, error) {
	if strings.TrimSpace(billText) == "" {
		return nil, InputError{Msg: "bill text is empty"}
	}

	chunks := p.splitter.Split(billText)
	result := &Result{TotalChunks: len(chunks), Chunks: chunks}

	// originalTexts caches one retrieval per unique (code, article) pair
	// across the whole run, mirroring step_3's unique_articles_data
	// deduplication — a bill frequently touches the same article from
	// several chunks (e.g. one MODIFY per alinéa).
	originalTexts := make(map[string]string)

	for _, chunk := range chunks {
		select {
		case <-ctx.Done():
			result.Failed = append(result.Failed, failedChunk(chunk, ctx.Err(), ""))
			return result, ctx.Err()
		default:
		}

		state := &chunkState{chunk: chunk}

		target, err := p.identifier.Identify(ctx, chunk)
		if err != nil {
			result.Failed = append(result.Failed, failedChunk(chunk, err, ""))
			continue
		}
		if !target.IsTargetable(p.cfg.ConfidenceThreshold) {
			result.Failed = append(result.Failed, failedChunk(chunk, nil, "gated: no targetable article identified"))
			continue
		}
		state.target = target

		originalText, skip := p.resolveOriginalText(ctx, state.target, originalTexts)
		if skip != "" {
			result.Failed = append(result.Failed, failedChunk(chunk, nil, skip))
			continue
		}
		state.originalText = originalText

		if err := p.reconstructChunk(ctx, state); err != nil {
			result.Failed = append(result.Failed, failedChunk(chunk, err, ""))
			continue
		}

		p.locateLinkResolve(ctx, state)

		output, err := p.synthesize(state)
		if err != nil {
			result.Failed = append(result.Failed, failedChunk(chunk, err, ""))
			continue
		}
		result.Outputs = append(result.Outputs, *output)

		if state.target.OperationType == model.OpInsert {
			p.registry.SetText(state.target.Code, state.target.Article, state.reconResult.FinalText)
		}
	}

	return result, nil
}

// resolveOriginalText fetches (or reuses) the original text for a
// target article. INSERT operations and articles that look like
// exotic (non-article) citations are skipped rather than fetched,
// matching step_3's handling.
func (p *Pipeline) resolveOriginalText(ctx context.Context, target *model.TargetArticle, cacheMap map[string]string) (string, string) {
	if target.OperationType == model.OpInsert {
		return "", ""
	}
	if isExoticFormat(target.Article) {
		return "", "exotic format skipped"
	}

	key := articleKey(target.Code, target.Article)
	if text, ok := cacheMap[key]; ok {
		return text, ""
	}

	text, _, err := p.retriever.FetchArticleText(ctx, target.Code, target.Article)
	if text == "" {
		if inserted, ok := p.registry.GetText(target.Code, target.Article); ok {
			cacheMap[key] = inserted
			return inserted, ""
		}
		reason := "no original text found"
		if err != nil {
			reason = err.Error()
		}
		return "", RetrievalError{ArticleKey: key, Reason: reason}.Error()
	}
	cacheMap[key] = text
	return text, ""
}

// reconstructChunk runs the decompose/apply/validate chain and derives
// the focused ReconstructorOutput (deleted/inserted/after-state
// fragments) that every downstream reference-resolution stage scans
// instead of the full article text.
func (p *Pipeline) reconstructChunk(ctx context.Context, state *chunkState) error {
	targetRef := state.target.Code + "::" + state.target.Article
	recon := p.reconstructor.ReconstructAmendment(ctx, state.originalText, state.chunk.Text, targetRef, state.chunk.ChunkID)
	state.reconResult = recon

	if len(recon.OperationsApplied) == 0 && len(recon.OperationsFailed) == 1 && recon.OperationsFailed[0].Op == nil {
		// ReconstructAmendment reports decomposition producing zero
		// operations as a single Op-less FailedOperation.
		return DecomposeError{ChunkID: state.chunk.ChunkID, Reason: recon.OperationsFailed[0].Error}
	}
	if len(recon.OperationsApplied) == 0 && len(recon.OperationsFailed) > 0 {
		return ApplyError{ChunkID: state.chunk.ChunkID, Reason: recon.OperationsFailed[0].Error}
	}
	if !recon.Success && hasCriticalValidation(recon.ValidationWarnings) {
		// The reconstruction stays marked unsuccessful; the chunk continues.
		validateErr := ValidateError{ChunkID: state.chunk.ChunkID, Reason: recon.ValidationWarnings[0]}
		p.log.Debugw("reconstruction validation reported critical errors", "error", validateErr.Error())
	}

	state.recon = buildReconstructorOutput(state.originalText, recon)
	return nil
}

// buildReconstructorOutput derives the three focused delta fields from
// a ReconstructionResult's applied operations: everything removed or
// replaced becomes the "before" fragment, everything inserted or
// written becomes the "after" fragment, and the full reconstructed
// article is the after-state used for contextual carving. This keeps
// the reference locator scanning only the delta, the same focused-scan
// optimization step_5's docstring describes.
func buildReconstructorOutput(originalText string, recon *model.ReconstructionResult) model.ReconstructorOutput {
	var deleted, inserted strings.Builder
	for _, op := range recon.OperationsApplied {
		if op.TargetText != "" {
			if deleted.Len() > 0 {
				deleted.WriteString(" ")
			}
			deleted.WriteString(op.TargetText)
		}
		if op.ReplacementText != "" {
			if inserted.Len() > 0 {
				inserted.WriteString(" ")
			}
			inserted.WriteString(op.ReplacementText)
		}
	}
	return model.ReconstructorOutput{
		DeletedOrReplacedText:      deleted.String(),
		NewlyInsertedText:          inserted.String(),
		IntermediateAfterStateText: recon.FinalText,
	}
}

// locateLinkResolve runs the three reference-resolution stages in
// sequence. Unlike decomposition/application, these are not
// individually fatal to the chunk — an empty reference list (or a
// resolution failure) simply yields a synthesis with no annotations.
func (p *Pipeline) locateLinkResolve(ctx context.Context, state *chunkState) {
	located, err := p.locator.Locate(ctx, state.recon)
	if err != nil {
		p.log.Debugw("reference location failed", "chunk_id", state.chunk.ChunkID, "error", err)
		return
	}
	state.located = located
	if len(located) == 0 {
		return
	}

	state.linked = p.linker.LinkReferences(ctx, located, state.recon)
	if len(state.linked) == 0 {
		return
	}

	state.resolution = p.resolver.ResolveReferences(ctx, state.linked, state.originalText, state.target)
	for _, unresolved := range state.resolution.Unresolved {
		refErr := ReferenceError{
			ChunkID:       state.chunk.ChunkID,
			ReferenceText: unresolved.LinkedReference.ReferenceText,
			Reason:        unresolved.Error,
		}
		p.log.Debugw("reference left unresolved", "error", refErr.Error())
	}
}

// hasCriticalValidation reports whether any warning produced by
// extractValidationWarnings in pkg/reconstruct carries the "CRITICAL:"
// prefix ResultValidator uses for coherence errors severe enough to
// mark the reconstruction unsuccessful.
func hasCriticalValidation(warnings []string) bool {
	for _, w := range warnings {
		if strings.HasPrefix(w, "CRITICAL:") {
			return true
		}
	}
	return false
}

// synthesize produces the final per-chunk LegalAnalysisOutput. A
// synthesis failure is fatal only to this chunk (SynthesisError);
// LegalStateSynthesizer's algorithm is deterministic, so the only way it
// fails is an upstream stage leaving state incomplete.
func (p *Pipeline) synthesize(state *chunkState) (*model.LegalAnalysisOutput, error) {
	if state.target == nil {
		return nil, SynthesisError{ChunkID: state.chunk.ChunkID, Reason: "no target article available for synthesis"}
	}
	output := p.synthesizer.Synthesize(state.chunk, *state.target, state.recon, state.resolution, state.originalText)
	return &output, nil
}

func failedChunk(chunk model.BillChunk, err error, skipReason string) model.FailedChunk {
	preview := chunk.Text
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return model.FailedChunk{
		ChunkID:       chunk.ChunkID,
		TextPreview:   preview,
		HierarchyPath: chunk.HierarchyPath,
		Error:         errMsg,
		SkipReason:    skipReason,
	}
}

func articleKey(code, article string) string {
	if code == "" {
		return article
	}
	return code + "::" + article
}

// isExoticFormat filters out non-article citations (titles, books,
// chapters) that TargetArticleIdentifier occasionally returns as the
// "article" field when a chunk amends a structural heading rather than
// a numbered article. These have no corpus entry and are skipped
// rather than treated as retrieval failures.
func isExoticFormat(article string) bool {
	lowered := strings.ToLower(article)
	for _, marker := range []string{"titre", "livre", "chapitre", "section", "annexe"} {
		if strings.HasPrefix(lowered, marker) {
			return true
		}
	}
	return false
}
