// Package icons orchestrates icon generation: validate, expand the topic
// (through the cache), render one prompt per item and generate the images
// concurrently.
package icons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iconforge/iconforge/pkg/cache"
	"github.com/iconforge/iconforge/pkg/expander"
	"github.com/iconforge/iconforge/pkg/imagegen"
	"github.com/iconforge/iconforge/pkg/metrics"
	"github.com/iconforge/iconforge/pkg/models"
	"github.com/iconforge/iconforge/pkg/style"
)

const (
	DefaultExpansionTimeout  = 30 * time.Second
	DefaultGenerationTimeout = 60 * time.Second
)

// Recorder persists a summary of each finished request.
type Recorder interface {
	Record(ctx context.Context, rec models.GenerationRecord) error
}

// Config holds the orchestrator's tunables. Zero values select defaults.
type Config struct {
	CacheTTL          time.Duration
	ExpansionTimeout  time.Duration
	GenerationTimeout time.Duration
}

// Orchestrator runs generation requests end to end.
type Orchestrator struct {
	expander  expander.Expander
	generator imagegen.Generator
	cache     cache.Store
	cfg       Config
	validate  *validator.Validate
	logger    *zap.Logger
	metrics   *metrics.Metrics
	recorder  Recorder
	now       func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithRecorder sets the history recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New creates an Orchestrator.
func New(e expander.Expander, g imagegen.Generator, c cache.Store, cfg Config, opts ...Option) *Orchestrator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.ExpansionTimeout <= 0 {
		cfg.ExpansionTimeout = DefaultExpansionTimeout
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	o := &Orchestrator{
		expander:  e,
		generator: g,
		cache:     c,
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// Generate produces expander.ItemCount icons for req. Either every icon is
// returned or an *Error is.
func (o *Orchestrator) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error) {
	start := o.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	req.Topic = strings.TrimSpace(req.Topic)
	req.Colors = strings.TrimSpace(req.Colors)

	defer o.metrics.TrackInflight()()
	log := o.logger.With(zap.String("request_id", req.RequestID))

	resp, cacheHit, err := o.generate(ctx, req, log)
	o.finish(ctx, req, resp, cacheHit, err, o.now().Sub(start), log)
	return resp, err
}

func (o *Orchestrator) generate(ctx context.Context, req models.GenerationRequest, log *zap.Logger) (*models.GenerationResponse, bool, error) {
	tmpl, err := o.validateRequest(req)
	if err != nil {
		return nil, false, err
	}

	items, cacheHit, err := o.expand(ctx, req, log)
	if err != nil {
		return nil, cacheHit, err
	}

	icons, err := o.render(ctx, tmpl, items)
	if err != nil {
		return nil, cacheHit, err
	}
	return &models.GenerationResponse{StyleID: int(tmpl.ID), Icons: icons}, cacheHit, nil
}

func (o *Orchestrator) validateRequest(req models.GenerationRequest) (style.Template, error) {
	if err := o.validate.Struct(req); err != nil {
		return style.Template{}, &Error{Kind: KindInvalidInput, Message: "topic and style id are required", Err: err}
	}
	tmpl, err := style.Resolve(style.ID(req.StyleID))
	if err != nil {
		return style.Template{}, &Error{Kind: KindInvalidInput, Message: fmt.Sprintf("invalid style id: %d", req.StyleID), Err: err}
	}
	return tmpl, nil
}

// expand returns the items for req, from the cache when possible.
func (o *Orchestrator) expand(ctx context.Context, req models.GenerationRequest, log *zap.Logger) ([]string, bool, error) {
	key := cache.NewKey(req.Topic, req.Colors)

	lookup, err := o.cache.Get(ctx, key)
	if err != nil {
		log.Warn("expansion cache read failed, treating as miss", zap.Error(err))
	}
	if lookup.Found() {
		// Persistent backends may hold entries written by other processes.
		if err := checkItems(lookup.Entry.Items); err != nil {
			log.Warn("discarding malformed cached expansion", zap.String("topic", req.Topic), zap.Error(err))
			lookup = cache.Lookup{Status: cache.Miss}
		}
	}
	o.metrics.ObserveCacheLookup(lookup.Status.String())
	if lookup.Found() {
		log.Debug("expansion cache hit", zap.String("topic", req.Topic))
		return lookup.Entry.Items, true, nil
	}
	log.Info("expansion cache miss",
		zap.String("topic", req.Topic),
		zap.String("colors", req.Colors),
		zap.Stringer("lookup", lookup.Status))

	ectx, cancel := context.WithTimeout(ctx, o.cfg.ExpansionTimeout)
	defer cancel()

	begin := time.Now()
	items, err := o.expander.Expand(ectx, req.Topic, req.Colors)
	o.metrics.ObserveUpstream("expander", time.Since(begin), err)
	if err != nil {
		return nil, false, o.upstreamError(ctx, KindExpansion, o.cfg.ExpansionTimeout, err)
	}
	if err := checkItems(items); err != nil {
		return nil, false, &Error{Kind: KindExpansion, Message: err.Error(), Err: err}
	}

	if err := o.cache.Put(ctx, key, items, o.cfg.CacheTTL); err != nil {
		log.Warn("expansion cache write failed", zap.Error(err))
	}
	return items, false, nil
}

func checkItems(items []string) error {
	if len(items) != expander.ItemCount {
		return fmt.Errorf("expansion returned %d items, want %d", len(items), expander.ItemCount)
	}
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return fmt.Errorf("expansion returned an empty item at position %d", i+1)
		}
	}
	return nil
}

// render generates one image per item concurrently. Results are stored by
// index, so the output order is the item order. The first failure cancels
// the remaining calls.
func (o *Orchestrator) render(ctx context.Context, tmpl style.Template, items []string) ([]models.IconResult, error) {
	icons := make([]models.IconResult, len(items))
	g, gctx := errgroup.WithContext(ctx)

	for i, item := range items {
		prompt := tmpl.Render(item)
		icons[i] = models.IconResult{Item: item, Prompt: prompt}

		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, o.cfg.GenerationTimeout)
			defer cancel()

			begin := time.Now()
			ref, err := o.generator.Generate(cctx, prompt)
			o.metrics.ObserveUpstream("generator", time.Since(begin), err)
			if err != nil {
				return err
			}
			if ref == "" {
				return fmt.Errorf("image generator returned no image for %q", item)
			}
			icons[i].ImageURL = ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, o.upstreamError(ctx, KindGeneration, o.cfg.GenerationTimeout, err)
	}
	return icons, nil
}

// upstreamError classifies a failed upstream call. Cancellation by the
// caller is not an upstream failure.
func (o *Orchestrator) upstreamError(ctx context.Context, kind Kind, timeout time.Duration, err error) error {
	if ctx.Err() != nil {
		return &Error{Kind: KindUnexpected, Message: "request cancelled", Err: ctx.Err()}
	}
	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("%s timed out after %s: %s", kind, timeout, msg)
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (o *Orchestrator) finish(ctx context.Context, req models.GenerationRequest, resp *models.GenerationResponse, cacheHit bool, err error, latency time.Duration, log *zap.Logger) {
	rec := models.GenerationRecord{
		RequestID: req.RequestID,
		Topic:     req.Topic,
		Colors:    req.Colors,
		StyleID:   req.StyleID,
		Outcome:   models.OutcomeSucceeded,
		CacheHit:  cacheHit,
		LatencyMs: latency.Milliseconds(),
		CreatedAt: o.now().UTC(),
	}

	if err != nil {
		kind := KindOf(err)
		rec.Outcome = models.OutcomeFailed
		rec.FailureKind = kind.String()
		rec.Error = err.Error()
		o.metrics.ObserveRequest(string(rec.Outcome), rec.FailureKind)

		fields := []zap.Field{
			zap.String("kind", rec.FailureKind),
			zap.String("topic", req.Topic),
			zap.Int("style_id", req.StyleID),
			zap.Bool("rate_limited", IsRateLimited(err)),
			zap.Error(err),
		}
		if kind.ClientFault() {
			log.Info("generation rejected", fields...)
		} else {
			log.Error("generation failed", fields...)
		}
	} else {
		rec.IconCount = len(resp.Icons)
		o.metrics.ObserveRequest(string(rec.Outcome), "")
		log.Info("generation succeeded",
			zap.String("topic", req.Topic),
			zap.Int("style_id", resp.StyleID),
			zap.Bool("cache_hit", cacheHit),
			zap.Duration("latency", latency))
	}

	if o.recorder == nil {
		return
	}
	if rerr := o.recorder.Record(context.WithoutCancel(ctx), rec); rerr != nil {
		log.Warn("history record failed", zap.Error(rerr))
	}
}
