package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/timmy/slidewise/internal/domain"
	"github.com/timmy/slidewise/internal/logger"
	"github.com/timmy/slidewise/internal/prompts"
	"github.com/timmy/slidewise/internal/source"
	"golang.org/x/sync/errgroup"
)

// ExplainEngine fans a document's parts out to the explainer and reassembles
// the answers in document order.
type ExplainEngine struct {
	sources        *source.Registry
	explainer      Explainer
	logger         *logger.Logger
	maxConcurrency int
	partTimeout    time.Duration
}

// EngineConfig holds configuration for the explanation engine.
type EngineConfig struct {
	MaxConcurrency int           // 0 = one task per part
	PartTimeout    time.Duration // 0 = no per-part deadline
}

// NewExplainEngine creates a new explanation engine.
// Parameters:
//   - sources: registry used to open documents.
//   - explainer: provider called once per non-empty part.
//   - log: fallback logger when the context carries none.
//   - cfg: fan-out limits; nil means unbounded with no per-part deadline.
//
// Returns:
//   - *ExplainEngine: engine ready to process documents.
func NewExplainEngine(sources *source.Registry, explainer Explainer, log *logger.Logger, cfg *EngineConfig) *ExplainEngine {
	if cfg == nil {
		cfg = &EngineConfig{}
	}
	return &ExplainEngine{
		sources:        sources,
		explainer:      explainer,
		logger:         log,
		maxConcurrency: cfg.MaxConcurrency,
		partTimeout:    cfg.PartTimeout,
	}
}

// log returns a logger from context if available, otherwise returns the engine logger
func (e *ExplainEngine) log(ctx context.Context) *logger.Logger {
	if logger.HasLogger(ctx) || e.logger == nil {
		return logger.FromContext(ctx)
	}
	return e.logger
}

// Process explains every part of the document behind h.
// Parts whose text is empty produce no entry. A part whose rendering or
// explanation fails gets a diagnostic string in place of its explanation.
// Parameters:
//   - ctx: context for cancellation; cancels in-flight provider calls.
//   - h: handle of the document to explain.
//
// Returns:
//   - *domain.ExplanationArtifact: explanations ordered by part position.
//   - error: *domain.ParseError if the document cannot be opened or iterated.
func (e *ExplainEngine) Process(ctx context.Context, h domain.DocumentHandle) (*domain.ExplanationArtifact, error) {
	start := time.Now()
	ctx = logger.SetDocument(e.log(ctx).WithContext(ctx), h.Filename)
	ctx = logger.SetComponent(ctx, "engine")

	doc, err := e.sources.Open(ctx, h)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	results := make(chan domain.PartResult)
	collected := make(chan []domain.PartResult, 1)
	go func() {
		var out []domain.PartResult
		for r := range results {
			out = append(out, r)
		}
		collected <- out
	}()

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}

	partCount := 0
	for doc.Next() {
		part := doc.Part()
		partCount++
		g.Go(func() error {
			if r, ok := e.processPart(ctx, doc, part); ok {
				results <- r
			}
			return nil
		})
	}

	// Tasks never return errors; Wait only joins them.
	_ = g.Wait()
	close(results)
	parts := <-collected

	if err := doc.Err(); err != nil {
		return nil, domain.NewParseError(h.Filename, err)
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].Position < parts[j].Position })

	artifact := &domain.ExplanationArtifact{
		LectureName:  h.BaseName(),
		PartCount:    partCount,
		Explanations: make([]string, len(parts)),
		Positions:    make([]int, len(parts)),
	}
	failed := 0
	for i, r := range parts {
		artifact.Explanations[i] = r.Explanation
		artifact.Positions[i] = r.Position
		if r.Failed() {
			failed++
		}
	}

	logger.With(logger.Fields{
		"explained": len(parts) - failed,
		"failed":    failed,
		"omitted":   partCount - len(parts),
	}).WithParts(partCount).WithSince(start).Info(ctx, "Document explained")

	return artifact, nil
}

// processPart renders and explains one part. ok is false when the part has no text.
func (e *ExplainEngine) processPart(ctx context.Context, doc source.Document, part source.Part) (result domain.PartResult, ok bool) {
	result.Position = part.Index
	defer func() {
		if rec := recover(); rec != nil {
			result.Err = fmt.Errorf("panic: %v", rec)
			result.Explanation = prompts.PartError(result.Err)
			ok = true
		}
	}()

	text, err := doc.Render(part)
	if err != nil {
		return e.failPart(ctx, part, err), true
	}
	if text == "" {
		return result, false
	}

	callCtx := ctx
	if e.partTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.partTimeout)
		defer cancel()
	}

	explanation, err := e.explainer.Explain(callCtx, text)
	if err != nil {
		return e.failPart(ctx, part, err), true
	}

	result.Explanation = explanation
	return result, true
}

func (e *ExplainEngine) failPart(ctx context.Context, part source.Part, err error) domain.PartResult {
	e.log(ctx).WithFields(logger.Fields{
		logger.FieldPartIndex: part.Index,
	}).WithError(err).Warn("Part could not be explained")

	return domain.PartResult{
		Position:    part.Index,
		Explanation: prompts.PartError(err),
		Err:         err,
	}
}
