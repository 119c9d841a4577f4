// Package pipeline drives one freight-order document from upload to a final
// decision: preprocessing, primary extraction, an optional second opinion
// from a different provider, merge, domain validation and final scoring.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/scoring"
)

// Preprocessor turns a document reference into extraction-ready content.
type Preprocessor interface {
	Process(ctx context.Context, ref string) (*model.Document, error)
}

// Extractor runs one routed extraction. *provider.Manager implements it.
type Extractor interface {
	Parse(ctx context.Context, doc *model.Document, req provider.Request) (*model.ExtractionResult, error)
}

// RunRecorder receives the audit trail of each parse. Every store.Store
// implements it.
type RunRecorder interface {
	CreateRun(ctx context.Context, documentRef string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, outcome *model.Outcome) error
}

// Phase names, in execution order.
const (
	PhasePreprocess          = "preprocess"
	PhasePrimaryExtraction   = "primary_extraction"
	PhaseEscalationCheck     = "escalation_check"
	PhaseSecondaryExtraction = "secondary_extraction"
	PhaseMerge               = "merge"
	PhaseValidation          = "validation"
	PhaseScoring             = "scoring"
)

// Parser orchestrates document parsing.
type Parser struct {
	pre       Preprocessor
	providers Extractor
	scorer    *scoring.Scorer
	runs      RunRecorder
	tracer    trace.Tracer
}

// New creates a Parser. runs may be nil, in which case nothing is persisted.
// A nil scorer uses the default scoring configuration.
func New(pre Preprocessor, providers Extractor, scorer *scoring.Scorer, runs RunRecorder) *Parser {
	if scorer == nil {
		scorer = scoring.New(scoring.DefaultConfig())
	}
	return &Parser{
		pre:       pre,
		providers: providers,
		scorer:    scorer,
		runs:      runs,
		tracer:    otel.Tracer("github.com/sells-group/orderparse/internal/pipeline"),
	}
}

// Parse runs the full pipeline for one document. It never returns an error:
// failures, including panics, become an error outcome that requires manual
// review. Cancelling ctx aborts in-flight provider calls.
func (p *Parser) Parse(ctx context.Context, ref string, hints model.Hints) (out *model.Outcome) {
	if hints.RequestID == "" {
		hints.RequestID = uuid.NewString()
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.parse", trace.WithAttributes(
		attribute.String("document", ref),
		attribute.String("request_id", hints.RequestID),
	))
	defer span.End()

	r := &parseRun{
		p:     p,
		ctx:   ctx,
		ref:   ref,
		start: time.Now(),
		log:   zap.L().With(zap.String("document", ref), zap.String("request_id", hints.RequestID)),
	}
	r.open()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline: panic during parse", zap.Any("panic", rec), zap.Stack("stack"))
			out = r.fail(eris.Errorf("panic: %v", rec))
		}
		out.RunID = r.runID
		out.Phases = r.phases

		span.SetAttributes(
			attribute.String("status", string(out.Status)),
			attribute.String("provider", out.ProviderUsed),
			attribute.Bool("manual_review", out.RequiresManualReview),
		)
		if out.Status == model.OutcomeError {
			span.SetStatus(codes.Error, out.Error)
		}
		r.close(out)
	}()

	return r.execute(hints)
}

// parseRun is the per-document state of one Parse call.
type parseRun struct {
	p         *Parser
	ctx       context.Context
	ref       string
	start     time.Time
	log       *zap.Logger
	runID     string
	persisted bool
	phases    []model.PhaseResult
}

func (r *parseRun) execute(hints model.Hints) *model.Outcome {
	var doc *model.Document
	r.setStatus(model.RunStatusPreprocessing)
	err := r.track(PhasePreprocess, func(ctx context.Context) (map[string]any, error) {
		d, err := r.p.pre.Process(ctx, r.ref)
		if err != nil {
			return nil, err
		}
		doc = d
		return map[string]any{
			"page_count": d.Metadata.PageCount,
			"images":     len(d.Pages),
			"text_chars": len(d.Text),
		}, nil
	})
	if err != nil {
		return r.fail(err)
	}

	var primary *model.ExtractionResult
	r.setStatus(model.RunStatusExtracting)
	err = r.track(PhasePrimaryExtraction, func(ctx context.Context) (map[string]any, error) {
		res, err := r.p.providers.Parse(ctx, doc, provider.Request{Priority: provider.PriorityBalanced, Hints: hints})
		if err != nil {
			return nil, err
		}
		primary = res
		return resultMetadata(res), nil
	})
	if err != nil {
		return r.fail(err)
	}

	meta := model.OutcomeMetadata{DocumentRef: r.ref, PrimaryProvider: primary.Provider}
	_ = r.track(PhaseEscalationCheck, func(context.Context) (map[string]any, error) {
		meta.Escalated, meta.EscalationReasons = r.p.scorer.NeedsSecondOpinion(primary)
		return map[string]any{"escalate": meta.Escalated, "reasons": meta.EscalationReasons}, nil
	})

	final := primary
	if meta.Escalated {
		var secondary *model.ExtractionResult
		r.setStatus(model.RunStatusEscalating)
		err := r.track(PhaseSecondaryExtraction, func(ctx context.Context) (map[string]any, error) {
			res, err := r.p.providers.Parse(ctx, doc, provider.Request{
				Priority: provider.PriorityQuality,
				Exclude:  []string{primary.Provider},
				Hints:    hints,
			})
			if err != nil {
				return nil, err
			}
			secondary = res
			return resultMetadata(res), nil
		})
		if err != nil {
			r.log.Warn("pipeline: second opinion unavailable, keeping primary result",
				zap.String("primary", primary.Provider),
				zap.Error(err),
			)
			r.skip(PhaseMerge)
		} else {
			meta.SecondaryProvider = secondary.Provider
			_ = r.track(PhaseMerge, func(context.Context) (map[string]any, error) {
				final, meta.MergeWarnings = Merge(primary, secondary, r.p.scorer.IsCritical)
				return map[string]any{"provider": final.Provider, "warnings": meta.MergeWarnings}, nil
			})
		}
	} else {
		r.skip(PhaseSecondaryExtraction)
		r.skip(PhaseMerge)
	}

	var validationErrors []string
	r.setStatus(model.RunStatusValidating)
	_ = r.track(PhaseValidation, func(context.Context) (map[string]any, error) {
		validationErrors = Validate(final.Fields, r.p.scorer.Config())
		return map[string]any{"errors": len(validationErrors)}, nil
	})

	var dc model.DocumentConfidence
	_ = r.track(PhaseScoring, func(context.Context) (map[string]any, error) {
		dc = r.p.scorer.Score(scoring.Input{
			Fields:             final.Fields,
			ProviderConfidence: final.Confidence,
			ValidationErrors:   validationErrors,
		})
		return map[string]any{"overall": dc.Overall, "critical": dc.Critical, "level": string(dc.Level())}, nil
	})

	meta.FieldCount = len(final.Fields)
	for _, name := range r.p.scorer.Config().CriticalFields {
		if final.Fields.Present(name) {
			meta.CriticalFieldsExtracted++
		}
	}

	return &model.Outcome{
		Status:               model.OutcomeSuccess,
		ExtractedData:        final.Fields,
		ConfidenceScores:     dc.Scores(),
		Confidence:           &dc,
		ProviderUsed:         final.Provider,
		ProcessingTime:       time.Since(r.start),
		ValidationErrors:     validationErrors,
		RequiresManualReview: dc.ManualReviewRequired || len(validationErrors) > 0,
		ReviewReasons:        dc.ReviewReasons,
		Usage:                final.Usage,
		Metadata:             meta,
	}
}

// fail builds the terminal error outcome.
func (r *parseRun) fail(err error) *model.Outcome {
	msg := err.Error()
	r.log.Error("pipeline: parse failed", zap.Error(err))
	reason := "Parsing failed: " + msg
	return &model.Outcome{
		Status:               model.OutcomeError,
		ExtractedData:        model.Fields{},
		ConfidenceScores:     map[string]float64{},
		ProviderUsed:         "none",
		ProcessingTime:       time.Since(r.start),
		ValidationErrors:     []string{reason},
		RequiresManualReview: true,
		ReviewReasons:        []string{reason},
		Error:                msg,
		Metadata: model.OutcomeMetadata{
			DocumentRef: r.ref,
			FailedAt:    time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// track runs one phase under its own span and records its result.
func (r *parseRun) track(name string, fn func(ctx context.Context) (map[string]any, error)) error {
	ctx, span := r.p.tracer.Start(r.ctx, "pipeline."+name)
	defer span.End()

	r.log.Debug("pipeline: phase start", zap.String("phase", name))
	start := time.Now()
	meta, err := fn(ctx)
	duration := time.Since(start).Milliseconds()

	pr := model.PhaseResult{
		Name:     name,
		Status:   model.PhaseStatusComplete,
		Duration: duration,
		Metadata: meta,
	}
	if err != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Error("pipeline: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
	} else {
		r.log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}
	r.phases = append(r.phases, pr)
	return err
}

func (r *parseRun) skip(name string) {
	r.phases = append(r.phases, model.PhaseResult{Name: name, Status: model.PhaseStatusSkipped})
}

// open registers the run with the recorder. Without one, or if registration
// fails, the run still gets an ID but nothing is persisted.
func (r *parseRun) open() {
	if r.p.runs != nil {
		run, err := r.p.runs.CreateRun(r.ctx, r.ref)
		if err == nil {
			r.runID = run.ID
			r.persisted = true
			return
		}
		r.log.Warn("pipeline: failed to create run", zap.Error(err))
	}
	r.runID = uuid.NewString()
}

func (r *parseRun) setStatus(status model.RunStatus) {
	if !r.persisted {
		return
	}
	if err := r.p.runs.UpdateRunStatus(r.ctx, r.runID, status); err != nil {
		r.log.Warn("pipeline: failed to update status", zap.Error(err))
	}
}

// close persists the outcome. It outlives caller cancellation so aborted
// parses still reach the audit log.
func (r *parseRun) close(out *model.Outcome) {
	r.log.Info("pipeline: parse complete",
		zap.String("status", string(out.Status)),
		zap.String("provider", out.ProviderUsed),
		zap.Bool("manual_review", out.RequiresManualReview),
		zap.Duration("duration", out.ProcessingTime),
	)
	if !r.persisted {
		return
	}
	if err := r.p.runs.CompleteRun(context.WithoutCancel(r.ctx), r.runID, out); err != nil {
		r.log.Warn("pipeline: failed to record outcome", zap.Error(err))
	}
}

func resultMetadata(res *model.ExtractionResult) map[string]any {
	return map[string]any{
		"provider":           res.Provider,
		"field_count":        len(res.Fields),
		"average_confidence": res.AverageConfidence(),
		"duration_ms":        res.Duration.Milliseconds(),
	}
}
