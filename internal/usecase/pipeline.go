package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	domsvc "github.com/carolinacraus/market-state-api/internal/domain/service"
	"github.com/carolinacraus/market-state-api/internal/services/features"
	"github.com/carolinacraus/market-state-api/pkg/cache"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

// Step names reported in RunResult, StepError and metrics.
const (
	StepFetch      = "fetch"
	StepMergeRaw   = "merge_raw"
	StepBreadth    = "breadth"
	StepIndicators = "indicators"
	StepClassify   = "classify"
	StepPublish    = "publish"
	StepUpload     = "upload"
)

// Variant is one enabled classifier with the artifacts it owns. Published
// marks the last labeled day delivered to the sink and publisher; nil means
// every labeled row is delivered on each run.
type Variant struct {
	Classifier domsvc.Classifier
	Labeled    domrepo.PanelStore
	Log        domrepo.LabelLog
	Published  domrepo.Watermark
}

// Deps are the collaborators of Pipeline. Breadth, Sink, Publisher, Uploader,
// Lock and Cache are optional.
type Deps struct {
	Market     domrepo.MarketSource
	Breadth    domrepo.BreadthSource
	Raw        domrepo.PanelStore
	Indicators domrepo.PanelStore
	Engine     *features.Engine
	Variants   []Variant
	Sink       domrepo.LabelSink
	Publisher  domrepo.Publisher
	Uploader   domrepo.Uploader
	Lock       domrepo.RunLock
	Cache      cache.Service
	Metrics    domrepo.Metrics
}

// Options tune Pipeline.
type Options struct {
	// Inception is the first day requested by a full rebuild.
	Inception   time.Time
	StepTimeout time.Duration
	LockTTL     time.Duration
}

// Pipeline is the sole writer of the raw, indicator and labeled panels and
// the regime ledgers. Every run is a sequence of steps; a failing step aborts
// the rest and leaves the artifacts of completed steps on disk.
type Pipeline struct {
	d    Deps
	opts Options
	now  func() time.Time
	l    *applogger.Logger
}

func NewPipeline(d Deps, opts Options, l *applogger.Logger) *Pipeline {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	return &Pipeline{d: d, opts: opts, now: time.Now, l: l.With(applogger.String("component", "pipeline"))}
}

// Classifiers lists the enabled variant names in run order.
func (p *Pipeline) Classifiers() []string {
	out := make([]string, len(p.d.Variants))
	for i, v := range p.d.Variants {
		out[i] = v.Classifier.Name()
	}
	return out
}

// run carries the state of one pipeline invocation.
type run struct {
	*Pipeline
	res *models.RunResult
	l   *applogger.Logger
}

func (p *Pipeline) begin(ctx context.Context) (*run, func(error), error) {
	release := func() {}
	if p.d.Lock != nil {
		r, err := p.d.Lock.Acquire(ctx, p.opts.LockTTL)
		if err != nil {
			return nil, nil, err
		}
		release = r
	}
	id := uuid.NewString()
	r := &run{
		Pipeline: p,
		res: &models.RunResult{
			RunID:    id,
			Appended: make(map[string]int),
			Latest:   make(map[string]models.Regime),
		},
		l: p.l.With(applogger.String("run_id", id)),
	}
	start := time.Now()
	finish := func(err error) {
		release()
		p.metrics().RecordRun(err == nil)
		if err != nil {
			r.l.Error("pipeline run failed", applogger.Error(err), applogger.Duration("duration_ms", time.Since(start)))
			return
		}
		r.l.Info("pipeline run finished",
			applogger.Bool("no_op", r.res.NoOp),
			applogger.Int("fetched", r.res.FetchedRows),
			applogger.Int("new_indicator_rows", r.res.NewIndicators),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return r, finish, nil
}

// Run advances every artifact by the trading days after the last indicator
// row, or by req's explicit range. Nothing pending is a no-op success.
func (p *Pipeline) Run(ctx context.Context, req models.RunRequest) (res *models.RunResult, err error) {
	r, finish, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { finish(err) }()

	raw, err := r.loadRequired(ctx, p.d.Raw)
	if err != nil {
		return nil, err
	}
	ind, err := r.loadRequired(ctx, p.d.Indicators)
	if err != nil {
		return nil, err
	}

	from, to := req.Start, req.End
	if to.IsZero() {
		to = util.Day(p.now())
	}
	if from.IsZero() {
		from = p.opts.Inception
		if last, ok := ind.LastDate(); ok {
			from = util.NextDay(last)
		}
	}
	r.res.From, r.res.To = from, to
	r.l.Info("pipeline run started", applogger.Date("from", from), applogger.Date("to", to))

	var fetched *models.Panel
	if !from.After(to) {
		if fetched, err = r.fetch(ctx, from, to); err != nil {
			return nil, err
		}
	}
	if fetched.Len() > 0 {
		if raw, err = r.mergeRaw(ctx, raw, fetched, from, to); err != nil {
			return nil, err
		}
		if raw, err = r.breadth(ctx, raw, from, to); err != nil {
			return nil, err
		}
	}

	pending := missingDates(raw, ind)
	if ind, err = r.indicators(ctx, raw, ind, pending, from, to); err != nil {
		return nil, err
	}

	labeled, err := r.classifyPending(ctx, ind, from, to)
	if err != nil {
		return nil, err
	}
	published, err := r.publish(ctx, p.d.Variants, false, from, to)
	if err != nil {
		return nil, err
	}
	uploaded, err := r.upload(ctx, from, to)
	if err != nil {
		return nil, err
	}
	r.res.NoOp = fetched.Len() == 0 && len(pending) == 0 && labeled == 0 && published == 0 && uploaded == 0
	return r.res, nil
}

// Rebuild refetches history from the inception date and overwrites every
// panel and ledger.
func (p *Pipeline) Rebuild(ctx context.Context) (res *models.RunResult, err error) {
	r, finish, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { finish(err) }()

	from, to := p.opts.Inception, util.Day(p.now())
	r.res.From, r.res.To = from, to
	r.l.Info("full rebuild started", applogger.Date("from", from), applogger.Date("to", to))

	raw, err := r.fetch(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if raw, err = r.mergeRaw(ctx, nil, raw, from, to); err != nil {
		return nil, err
	}
	if raw, err = r.breadth(ctx, raw, from, to); err != nil {
		return nil, err
	}
	ind, err := r.indicators(ctx, raw, nil, raw.Dates(), from, to)
	if err != nil {
		return nil, err
	}

	err = r.step(StepClassify, from, to, func() (int, error) {
		n := 0
		for _, v := range p.d.Variants {
			out, labeled := label(v.Classifier, ind.Rows, "", ind)
			if err := v.Labeled.Save(ctx, labeled); err != nil {
				return n, err
			}
			if err := v.Log.Rewrite(ctx, out); err != nil {
				return n, err
			}
			r.recordLabels(v, out, len(out))
			n += len(out)
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if _, err := r.publish(ctx, p.d.Variants, true, from, to); err != nil {
		return nil, err
	}
	if _, err := r.upload(ctx, from, to); err != nil {
		return nil, err
	}
	return r.res, nil
}

// Reclassify relabels the whole indicator panel with one classifier. The
// labeled panel is overwritten; the ledger only gains dates it lacks.
func (p *Pipeline) Reclassify(ctx context.Context, name string) (res *models.RunResult, err error) {
	v, ok := p.variant(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClassifier, name)
	}
	r, finish, err := p.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { finish(err) }()

	ind, err := r.loadRequired(ctx, p.d.Indicators)
	if err != nil {
		return nil, err
	}
	first, _ := firstDate(ind)
	last, _ := ind.LastDate()
	r.res.From, r.res.To = first, last

	err = r.step(StepClassify, first, last, func() (int, error) {
		out, labeled := label(v.Classifier, ind.Rows, "", ind)
		if err := v.Labeled.Save(ctx, labeled); err != nil {
			return 0, err
		}
		return len(out), r.appendLog(ctx, v, out)
	})
	if err != nil {
		return nil, err
	}
	// Every label may have changed, so the sinks get the whole panel again.
	if _, err := r.publish(ctx, []Variant{v}, true, first, last); err != nil {
		return nil, err
	}
	return r.res, nil
}

func (r *run) loadRequired(ctx context.Context, s domrepo.PanelStore) (*models.Panel, error) {
	p, err := s.Load(ctx)
	if errors.Is(err, domrepo.ErrNotFound) {
		r.l.Error("required artifact missing", applogger.String("artifact", s.Name()))
		return nil, fmt.Errorf("%w: %s", ErrInputMissing, s.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", s.Name(), err)
	}
	return p, nil
}

func (r *run) fetch(ctx context.Context, from, to time.Time) (*models.Panel, error) {
	var out *models.Panel
	err := r.step(StepFetch, from, to, func() (int, error) {
		ctx, cancel := r.stepContext(ctx)
		defer cancel()
		p, err := r.d.Market.FetchBars(ctx, from, to)
		if err != nil {
			return 0, err
		}
		if err := p.Validate(); err != nil {
			return 0, err
		}
		out = p
		return p.Len(), nil
	})
	r.res.FetchedRows = out.Len()
	return out, err
}

// mergeRaw folds fetched rows into raw (new values win) and persists.
func (r *run) mergeRaw(ctx context.Context, raw, fetched *models.Panel, from, to time.Time) (*models.Panel, error) {
	var out *models.Panel
	err := r.step(StepMergeRaw, from, to, func() (int, error) {
		out = models.MergeByDate(raw, fetched)
		return fetched.Len(), r.d.Raw.Save(ctx, out)
	})
	return out, err
}

// breadth left-joins advance/decline series onto the raw panel's days.
func (r *run) breadth(ctx context.Context, raw *models.Panel, from, to time.Time) (*models.Panel, error) {
	if r.d.Breadth == nil {
		return raw, nil
	}
	out := raw
	err := r.step(StepBreadth, from, to, func() (int, error) {
		sctx, cancel := r.stepContext(ctx)
		defer cancel()
		b, err := r.d.Breadth.FetchBreadth(sctx, from, to)
		if err != nil {
			return 0, err
		}
		out = models.JoinFields(raw, b)
		return b.Len(), r.d.Raw.Save(ctx, out)
	})
	return out, err
}

// indicators computes the pending days with lookback context from raw and
// merges them into ind (new values win). A nil ind is a full rebuild.
func (r *run) indicators(ctx context.Context, raw, ind *models.Panel, pending map[string]struct{}, from, to time.Time) (*models.Panel, error) {
	if len(pending) == 0 {
		return ind, nil
	}
	out := ind
	err := r.step(StepIndicators, from, to, func() (int, error) {
		var (
			computed *models.Panel
			err      error
		)
		if ind == nil {
			computed, err = r.d.Engine.Compute(ctx, raw)
		} else {
			computed, err = r.d.Engine.ComputeDates(ctx, raw, pending)
		}
		if err != nil {
			return 0, err
		}
		out = models.MergeByDate(ind, computed)
		r.res.NewIndicators = computed.Len()
		return computed.Len(), r.d.Indicators.Save(ctx, out)
	})
	return out, err
}

// classifyPending labels, per variant, every indicator day from the first
// one missing from its labeled panel or its ledger. Hysteresis state is
// seeded from the ledger. It returns the number of rows labeled.
func (r *run) classifyPending(ctx context.Context, ind *models.Panel, from, to time.Time) (int, error) {
	total := 0
	err := r.step(StepClassify, from, to, func() (int, error) {
		for _, v := range r.d.Variants {
			existing, err := v.Labeled.Load(ctx)
			if errors.Is(err, domrepo.ErrNotFound) {
				existing, err = &models.Panel{}, nil
			}
			if err != nil {
				return total, err
			}
			entries, err := v.Log.Entries(ctx)
			if err != nil {
				return total, err
			}
			rows := pendingRows(ind, existing, entries)
			if len(rows) == 0 {
				continue
			}
			labels, labeled := label(v.Classifier, rows, priorRegime(entries, rows[0].Date), ind)
			if err := v.Labeled.Save(ctx, models.MergeByDate(existing, labeled)); err != nil {
				return total, err
			}
			if err := r.appendLog(ctx, v, labels); err != nil {
				return total, err
			}
			total += len(labels)
		}
		return total, nil
	})
	return total, err
}

func (r *run) appendLog(ctx context.Context, v Variant, labels []models.Label) error {
	n, err := v.Log.Append(ctx, labels)
	if err != nil {
		return err
	}
	r.recordLabels(v, labels, n)
	return nil
}

func (r *run) recordLabels(v Variant, labels []models.Label, appended int) {
	name := v.Classifier.Name()
	r.res.Appended[name] += appended
	r.metrics().RecordRowsAppended(name, appended)
	if len(labels) > 0 {
		latest := labels[len(labels)-1].Regime
		r.res.Latest[name] = latest
		r.metrics().RecordRegime(name, string(latest))
	}
	if r.d.Cache != nil {
		if err := r.d.Cache.Delete(context.Background(), RegimesCacheKey(name)); err != nil {
			r.l.Warn("invalidate regimes cache", applogger.String("classifier", name), applogger.Error(err))
		}
	}
}

// publish delivers labeled rows after each variant's watermark to the sink
// and the publisher, then advances the watermark. all ignores the watermarks.
// A failed delivery leaves the watermark in place, so the next run retries it.
func (r *run) publish(ctx context.Context, variants []Variant, all bool, from, to time.Time) (int, error) {
	if r.d.Sink == nil && r.d.Publisher == nil {
		return 0, nil
	}
	total := 0
	err := r.step(StepPublish, from, to, func() (int, error) {
		ctx, cancel := r.stepContext(ctx)
		defer cancel()
		for _, v := range variants {
			n, err := r.publishVariant(ctx, v, all)
			total += n
			if err != nil {
				return total, err
			}
		}
		return total, nil
	})
	return total, err
}

func (r *run) publishVariant(ctx context.Context, v Variant, all bool) (int, error) {
	labeled, err := v.Labeled.Load(ctx)
	if errors.Is(err, domrepo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var since time.Time
	marked := false
	if !all && v.Published != nil {
		if since, marked, err = v.Published.Get(ctx); err != nil {
			return 0, err
		}
	}
	var labels []models.Label
	for _, row := range labeled.Rows {
		if row.Label == nil || (marked && !row.Date.After(since)) {
			continue
		}
		labels = append(labels, *row.Label)
	}
	if len(labels) == 0 {
		return 0, nil
	}

	name := v.Classifier.Name()
	if r.d.Sink != nil {
		if err := r.d.Sink.StoreLabels(ctx, name, labels); err != nil {
			return 0, err
		}
	}
	if r.d.Publisher != nil {
		if err := r.d.Publisher.PublishLabels(ctx, name, labels); err != nil {
			return 0, err
		}
	}
	if v.Published != nil {
		if err := v.Published.Set(ctx, labels[len(labels)-1].Date); err != nil {
			return 0, err
		}
	}
	return len(labels), nil
}

// upload pushes every ledger on each run; the uploader skips stored dates,
// so a run after a failed upload catches up.
func (r *run) upload(ctx context.Context, from, to time.Time) (int, error) {
	if r.d.Uploader == nil {
		return 0, nil
	}
	total := 0
	err := r.step(StepUpload, from, to, func() (int, error) {
		ctx, cancel := r.stepContext(ctx)
		defer cancel()
		for _, v := range r.d.Variants {
			entries, err := v.Log.Entries(ctx)
			if err != nil {
				return total, err
			}
			k, err := r.d.Uploader.Upload(ctx, v.Classifier.Name(), entries)
			total += k
			if err != nil {
				return total, err
			}
		}
		return total, nil
	})
	return total, err
}

// step times fn, records it, and wraps its failure in a StepError.
func (r *run) step(name string, from, to time.Time, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	dur := time.Since(start)
	r.metrics().RecordStep(name, dur.Seconds())
	r.res.Steps = append(r.res.Steps, models.StepStat{Step: name, Rows: n, Duration: dur})
	if err != nil {
		r.metrics().RecordError(name)
		return &StepError{Step: name, From: from, To: to, Err: err}
	}
	r.l.Info("pipeline step done",
		applogger.String("step", name),
		applogger.Int("rows", n),
		applogger.Duration("duration_ms", dur),
	)
	return nil
}

func (p *Pipeline) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.StepTimeout)
}

func (p *Pipeline) metrics() domrepo.Metrics {
	if p.d.Metrics == nil {
		return noopMetrics{}
	}
	return p.d.Metrics
}

func (p *Pipeline) variant(name string) (Variant, bool) {
	for _, v := range p.d.Variants {
		if v.Classifier.Name() == name {
			return v, true
		}
	}
	return Variant{}, false
}

// label classifies rows and returns the labels and a labeled panel carrying
// ind's columns.
func label(c domsvc.Classifier, rows []models.Row, prior models.Regime, ind *models.Panel) ([]models.Label, *models.Panel) {
	labels := c.Classify(rows, prior)
	labeled := &models.Panel{
		Fields:     append([]string(nil), ind.Fields...),
		Indicators: append([]models.IndicatorKey(nil), ind.Indicators...),
		Rows:       make([]models.Row, len(rows)),
	}
	for i, row := range rows {
		labeled.Rows[i] = row.Clone()
		l := labels[i]
		labeled.Rows[i].Label = &l
	}
	return labels, labeled
}

// missingDates returns the days of raw absent from ind.
func missingDates(raw, ind *models.Panel) map[string]struct{} {
	have := ind.Dates()
	out := make(map[string]struct{})
	for _, r := range raw.Rows {
		key := models.DayKey(r.Date)
		if _, ok := have[key]; !ok {
			out[key] = struct{}{}
		}
	}
	return out
}

// pendingRows returns the rows of ind from the first day missing from the
// labeled panel or the ledger onwards, so a classification interrupted
// between the two writes is redone.
func pendingRows(ind, labeled *models.Panel, entries []models.LogEntry) []models.Row {
	have := labeled.Dates()
	logged := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		logged[models.DayKey(e.Date)] = struct{}{}
	}
	for i, r := range ind.Rows {
		key := models.DayKey(r.Date)
		_, inPanel := have[key]
		_, inLog := logged[key]
		if !inPanel || !inLog {
			return ind.Rows[i:]
		}
	}
	return nil
}

// priorRegime is the last ledger regime before day.
func priorRegime(entries []models.LogEntry, day time.Time) models.Regime {
	var prior models.Regime
	var at time.Time
	for _, e := range entries {
		if e.Date.Before(day) && !e.Date.Before(at) {
			prior, at = e.Regime, e.Date
		}
	}
	return prior
}

func firstDate(p *models.Panel) (time.Time, bool) {
	if p.Len() == 0 {
		return time.Time{}, false
	}
	return p.Rows[0].Date, true
}

type noopMetrics struct{}

func (noopMetrics) RecordStep(string, float64)     {}
func (noopMetrics) RecordError(string)             {}
func (noopMetrics) RecordRowsAppended(string, int) {}
func (noopMetrics) RecordRegime(string, string)    {}
func (noopMetrics) RecordRun(bool)                 {}
