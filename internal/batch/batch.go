// Package batch drives the heatmap pipeline over every condition
// combination: select trials, accumulate drawings, smooth and mask, render,
// and catalog the written asset.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"thermomap/internal/catalog"
	"thermomap/internal/condition"
	"thermomap/internal/config"
	"thermomap/internal/drawing"
	"thermomap/internal/heatmap"
	"thermomap/internal/logging"
	"thermomap/internal/mask"
	"thermomap/internal/render"
	"thermomap/internal/trial"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one job.
type Status int

const (
	StatusSucceeded Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one job.
type Result struct {
	Job    condition.Job
	Status Status
	Trials int
	Asset  *render.Asset
	Err    error
}

// Summary reports a finished run.
type Summary struct {
	RunID     string
	Results   []Result
	Succeeded int
	Skipped   int
	Failed    int
	Elapsed   time.Duration
}

// Total returns the number of jobs in the run.
func (s *Summary) Total() int { return len(s.Results) }

// Failures returns the failed results in job order.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog records written assets in c.
func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithMaskProvider shares a mask provider across runs.
func WithMaskProvider(p *mask.Provider) Option {
	return func(o *Orchestrator) { o.masks = p }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// Orchestrator runs the pipeline for a configuration.
type Orchestrator struct {
	cfg      *config.Config
	logger   *zap.Logger
	masks    *mask.Provider
	renderer *render.Renderer
	catalog  *catalog.Catalog
	runID    string
}

// New creates an Orchestrator for cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	logger = logging.OrNop(logger)
	o := &Orchestrator{
		cfg:      cfg,
		logger:   logger,
		renderer: render.New(cfg.Render, logger.Named("render")),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.masks == nil {
		o.masks = mask.NewProvider(cfg.Paths.MaskPath, cfg.MaskThreshold, logger.Named("mask"))
	}
	return o
}

// Jobs lists every job of the configuration in dispatch order.
func (o *Orchestrator) Jobs() []condition.Job {
	var jobs []condition.Job
	for j := range o.cfg.Dimensions.Space().Jobs(o.cfg.Participants, o.cfg.PerParticipant) {
		jobs = append(jobs, j)
	}
	return jobs
}

// pipeline is the shared read-only state of one run.
type pipeline struct {
	runID      string
	mask       *mask.Mask
	records    []trial.Record
	normalizer *drawing.Normalizer
}

// Run executes every job. A failing job is logged and counted; it never
// stops the batch. Cancelling ctx lets in-flight jobs finish and skips the
// rest; the summary is returned together with ctx's error.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	runID := o.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := o.logger.With(zap.String("run_id", runID))

	m, err := o.masks.Get()
	if err != nil {
		return nil, err
	}
	rows, cols := m.Dims()

	opts := []drawing.Option{drawing.WithLogger(log.Named("drawing"))}
	if o.cfg.Paths.FilledDir != "" {
		opts = append(opts, drawing.WithPersistFilled(o.cfg.Paths.FilledDir))
	}
	p := &pipeline{
		runID:      runID,
		mask:       m,
		records:    trial.LoadDir(o.cfg.Paths.DataDir, o.cfg.Participants, log.Named("trial")),
		normalizer: drawing.NewNormalizer(drawing.Store{Root: o.cfg.Paths.DrawingsDir}, rows, cols, o.cfg.Drawing, opts...),
	}

	jobs := o.Jobs()
	results := make([]Result, len(jobs))
	log.Info("starting batch",
		zap.Int("jobs", len(jobs)),
		zap.Int("records", len(p.records)),
		zap.Int("workers", o.cfg.Workers))

	var g errgroup.Group
	g.SetLimit(max(1, o.cfg.Workers))

	for i, job := range jobs {
		if ctx.Err() != nil {
			results[i] = Result{Job: job, Status: StatusSkipped, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = Result{Job: job, Status: StatusSkipped, Err: ctx.Err()}
				return nil
			}
			results[i] = o.runJob(ctx, p, job)
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{RunID: runID, Results: results, Elapsed: time.Since(start)}
	for _, r := range results {
		switch r.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}

	log.Info("batch finished",
		zap.Int("succeeded", s.Succeeded),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Duration("elapsed", s.Elapsed))

	return s, ctx.Err()
}

func (o *Orchestrator) runJob(ctx context.Context, p *pipeline, job condition.Job) Result {
	log := o.logger.With(
		zap.String("run_id", p.runID),
		zap.Stringer("combination", job.Combination),
		zap.String("participants", condition.ParticipantString(job.Participants)))
	start := time.Now()

	res := Result{Job: job}
	asset, trials, err := o.render(ctx, p, job)
	res.Trials = trials
	switch {
	case errors.Is(err, errEmpty):
		res.Status = StatusSkipped
		log.Debug("no matching trials, skipped")
		return res
	case err != nil:
		res.Status = StatusFailed
		res.Err = err
		log.Error("combination failed", zap.Error(err))
		return res
	}

	res.Status = StatusSucceeded
	res.Asset = asset
	log.Info("heatmap written",
		zap.String("path", asset.Path),
		zap.Int("trials", trials),
		zap.Duration("duration", time.Since(start)))
	return res
}

var errEmpty = errors.New("no matching trials")

func (o *Orchestrator) render(ctx context.Context, p *pipeline, job condition.Job) (*render.Asset, int, error) {
	pred := trial.ForCombination(job.Combination, o.cfg.Match)
	sel := trial.Select(p.records, job.Participants, pred)
	if sel.Count() == 0 && o.cfg.SkipEmpty {
		return nil, 0, errEmpty
	}
	for _, id := range job.Participants {
		o.logger.Debug("selected trials",
			zap.Stringer("combination", job.Combination),
			zap.Int("participant", id),
			zap.Ints("trials", sel[id]))
	}

	rows, cols := p.mask.Dims()
	counts, n, err := heatmap.Accumulate(rows, cols, sel, p.normalizer.Contribution)
	if err != nil {
		return nil, n, fmt.Errorf("accumulate: %w", err)
	}

	field, err := heatmap.Build(counts, n, o.cfg.Heatmap, p.mask)
	if err != nil {
		return nil, n, fmt.Errorf("build field: %w", err)
	}

	rel := job.RelPath()
	asset, err := o.renderer.Render(field, job.Combination, filepath.Join(o.cfg.Paths.OutputDir, rel))
	if err != nil {
		return nil, n, fmt.Errorf("render: %w", err)
	}

	if o.catalog != nil {
		if err := o.catalog.Upsert(ctx, entryFor(p.runID, rel, job, n, asset)); err != nil {
			return nil, n, fmt.Errorf("catalog: %w", err)
		}
	}
	return asset, n, nil
}

func entryFor(runID, rel string, job condition.Job, trials int, a *render.Asset) catalog.Entry {
	c := job.Combination
	var illusion string
	if c.Illusion != nil {
		illusion = c.Illusion.String()
	}
	return catalog.Entry{
		Filename:     filepath.ToSlash(rel),
		RunID:        runID,
		Axis:         c.Axis.String(),
		Temperature:  c.Temperature,
		Duration:     c.Duration.String(),
		Position:     c.Position.String(),
		Illusion:     illusion,
		Participants: condition.ParticipantString(job.Participants),
		Trials:       trials,
		SHA256:       a.SHA256,
		Bytes:        a.Bytes,
		CreatedAt:    time.Now(),
	}
}
