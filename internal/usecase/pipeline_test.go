package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	"github.com/carolinacraus/market-state-api/internal/repository"
	"github.com/carolinacraus/market-state-api/internal/service/runlock"
	"github.com/carolinacraus/market-state-api/internal/services/features"
	"github.com/carolinacraus/market-state-api/pkg/cache"
)

var inception = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// tradingDays returns n weekdays starting at inception.
func tradingDays(n int) []time.Time {
	var out []time.Time
	for d := inception; len(out) < n; d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

func masterPanel(n int) *models.Panel {
	p := &models.Panel{Fields: []string{models.CloseField(models.SymbolSP500)}}
	for i, d := range tradingDays(n) {
		r := models.NewRow(d)
		r.SetField(models.CloseField(models.SymbolSP500), float64(100+i+2*(i%3)))
		p.Rows = append(p.Rows, r)
	}
	return p
}

type fakeMarket struct {
	panel *models.Panel
	err   error
	calls int
}

func (m *fakeMarket) FetchBars(_ context.Context, from, to time.Time) (*models.Panel, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.panel.Filter(func(r models.Row) bool {
		return !r.Date.Before(from) && !r.Date.After(to)
	}), nil
}

// cutoff labels a day Bull when the SP500 close exceeds level.
type cutoff struct {
	level  float64
	mu     sync.Mutex
	priors []models.Regime
}

func (c *cutoff) Name() string        { return "distance" }
func (c *cutoff) ScoreColumn() string { return "EuclideanDist" }

func (c *cutoff) Classify(rows []models.Row, prior models.Regime) []models.Label {
	c.mu.Lock()
	c.priors = append(c.priors, prior)
	c.mu.Unlock()
	out := make([]models.Label, len(rows))
	for i, r := range rows {
		regime := models.Regime("Bear")
		if r.Close(models.SymbolSP500).Or(0) > c.level {
			regime = "Bull"
		}
		out[i] = models.Label{Date: r.Date, Regime: regime, Confidence: 1}
	}
	return out
}

type recordingSink struct {
	stored map[string][]models.Label
}

func (s *recordingSink) StoreLabels(_ context.Context, classifier string, labels []models.Label) error {
	if s.stored == nil {
		s.stored = make(map[string][]models.Label)
	}
	s.stored[classifier] = append(s.stored[classifier], labels...)
	return nil
}

func (s *recordingSink) LatestLabels(context.Context, string, int) ([]models.Label, error) {
	return nil, nil
}

// recordingPublisher fails its next fail calls.
type recordingPublisher struct {
	published []models.Label
	fail      int
}

func (p *recordingPublisher) PublishLabels(_ context.Context, _ string, labels []models.Label) error {
	if p.fail > 0 {
		p.fail--
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, labels...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// recordingUploader stores each date once, like the relational uploader.
type recordingUploader struct {
	uploads int
	stored  map[string]struct{}
}

func (u *recordingUploader) Upload(_ context.Context, _ string, entries []models.LogEntry) (int, error) {
	u.uploads++
	if u.stored == nil {
		u.stored = make(map[string]struct{})
	}
	n := 0
	for _, e := range entries {
		if _, ok := u.stored[models.DayKey(e.Date)]; ok {
			continue
		}
		u.stored[models.DayKey(e.Date)] = struct{}{}
		n++
	}
	return n, nil
}

// flakyLog fails its next failAppend appends.
type flakyLog struct {
	domrepo.LabelLog
	failAppend int
}

func (l *flakyLog) Append(ctx context.Context, labels []models.Label) (int, error) {
	if l.failAppend > 0 {
		l.failAppend--
		return 0, errors.New("disk full")
	}
	return l.LabelLog.Append(ctx, labels)
}

type fixture struct {
	dir       string
	market    *fakeMarket
	clf       *cutoff
	sink      *recordingSink
	publisher *recordingPublisher
	uploader  *recordingUploader
	log       *flakyLog
	cache     *cache.MemoryCache
	pipeline  *Pipeline
}

func newFixture(t *testing.T, master *models.Panel) *fixture {
	t.Helper()
	f := &fixture{
		dir:       t.TempDir(),
		market:    &fakeMarket{panel: master},
		clf:       &cutoff{level: 130},
		sink:      &recordingSink{},
		publisher: &recordingPublisher{},
		uploader:  &recordingUploader{},
		cache:     cache.NewMemoryCache(),
	}
	f.log = &flakyLog{LabelLog: repository.NewTextLabelLog(f.path("states.txt"), f.path("diag.txt"))}
	f.pipeline = NewPipeline(Deps{
		Market:     f.market,
		Raw:        repository.NewCSVPanelStore(f.path("raw.csv")),
		Indicators: repository.NewCSVPanelStore(f.path("indicators.csv")),
		Engine:     features.NewEngine(features.DefaultOptions(), nil),
		Variants: []Variant{{
			Classifier: f.clf,
			Labeled:    repository.NewLabeledCSVPanelStore(f.path("labeled.csv"), f.clf.ScoreColumn()),
			Log:        f.log,
			Published:  repository.NewFileWatermark(f.path("published.txt")),
		}},
		Sink:      f.sink,
		Publisher: f.publisher,
		Uploader:  f.uploader,
		Lock:      runlock.New(f.cache, nil),
		Cache:     f.cache,
	}, Options{Inception: inception, LockTTL: time.Minute}, nil)
	return f
}

func (f *fixture) path(name string) string { return filepath.Join(f.dir, name) }

func (f *fixture) at(day time.Time) {
	f.pipeline.now = func() time.Time { return day.Add(18 * time.Hour) }
}

func (f *fixture) read(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(f.path(name))
	require.NoError(t, err)
	return string(b)
}

func TestRunFailsWhenInputsMissing(t *testing.T) {
	f := newFixture(t, masterPanel(10))

	_, err := f.pipeline.Run(context.Background(), models.RunRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInputMissing)
	assert.Zero(t, f.market.calls)
}

func TestIncrementalRunMatchesRebuild(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(60)
	master := masterPanel(60)

	full := newFixture(t, master)
	full.at(days[59])
	_, err := full.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	inc := newFixture(t, master)
	inc.at(days[49])
	_, err = inc.pipeline.Rebuild(ctx)
	require.NoError(t, err)
	inc.publisher.published = nil

	inc.at(days[59])
	res, err := inc.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Equal(t, 10, res.FetchedRows)
	assert.Equal(t, 10, res.NewIndicators)
	assert.Equal(t, 10, res.Appended["distance"])
	assert.Equal(t, models.Regime("Bull"), res.Latest["distance"])
	assert.NotEmpty(t, res.RunID)

	fullInd, err := repository.NewCSVPanelStore(full.path("indicators.csv")).Load(ctx)
	require.NoError(t, err)
	incInd, err := repository.NewCSVPanelStore(inc.path("indicators.csv")).Load(ctx)
	require.NoError(t, err)
	require.Equal(t, fullInd.Len(), incInd.Len())
	for i := range fullInd.Rows {
		want, got := fullInd.Rows[i], incInd.Rows[i]
		require.True(t, want.Date.Equal(got.Date))
		require.Len(t, got.Indicators, len(want.Indicators), "indicators on %s", models.DayKey(want.Date))
		for k, v := range want.Indicators {
			assert.InDelta(t, v, got.Indicators[k], 1e-9, "%s on %s", k.Column(), models.DayKey(want.Date))
		}
	}

	assert.Equal(t, full.read(t, "states.txt"), inc.read(t, "states.txt"))
	assert.Equal(t, full.read(t, "raw.csv"), inc.read(t, "raw.csv"))
	assert.Len(t, inc.publisher.published, 10)
	assert.Len(t, inc.uploader.stored, 60)
}

func TestRunSeedsPriorRegimeFromLedger(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(40)
	f := newFixture(t, masterPanel(40))

	f.at(days[29])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	f.at(days[39])
	_, err = f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)

	require.Len(t, f.clf.priors, 2)
	assert.Equal(t, models.Regime(""), f.clf.priors[0])
	// Day 29 closes at 129 + 2*(29%3) = 133.
	assert.Equal(t, models.Regime("Bull"), f.clf.priors[1])
}

func TestRunNoOpLeavesArtifactsUntouched(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(30)
	f := newFixture(t, masterPanel(30))
	f.at(days[29])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	names := []string{"raw.csv", "indicators.csv", "labeled.csv", "states.txt", "diag.txt"}
	before := make(map[string]string, len(names))
	for _, n := range names {
		before[n] = f.read(t, n)
	}
	published := len(f.publisher.published)

	res, err := f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, 1, f.market.calls)
	assert.Len(t, f.publisher.published, published)
	assert.Len(t, f.uploader.stored, 30)
	for _, n := range names {
		assert.Equal(t, before[n], f.read(t, n), n)
	}
}

func TestRunRepairsLedgerAfterFailedAppend(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(40)
	master := masterPanel(40)

	full := newFixture(t, master)
	full.at(days[39])
	_, err := full.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	f := newFixture(t, master)
	f.at(days[29])
	_, err = f.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	f.log.failAppend = 1
	f.at(days[39])
	_, err = f.pipeline.Run(ctx, models.RunRequest{})
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepClassify, se.Step)

	res, err := f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Zero(t, res.FetchedRows)
	assert.Equal(t, 10, res.Appended["distance"])
	assert.Equal(t, full.read(t, "states.txt"), f.read(t, "states.txt"))
	// The retry continues from the ledger's last regime, day 29.
	assert.Equal(t, models.Regime("Bull"), f.clf.priors[len(f.clf.priors)-1])
	assert.Len(t, f.uploader.stored, 40)
}

func TestRunRepublishesAfterFailedPublish(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(40)
	f := newFixture(t, masterPanel(40))
	f.at(days[29])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)
	f.publisher.published = nil

	f.publisher.fail = 1
	f.at(days[39])
	_, err = f.pipeline.Run(ctx, models.RunRequest{})
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepPublish, se.Step)
	assert.Empty(t, f.publisher.published)
	assert.Equal(t, models.DayKey(days[29])+"\n", f.read(t, "published.txt"))

	res, err := f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Zero(t, res.Appended["distance"])
	require.Len(t, f.publisher.published, 10)
	assert.Equal(t, models.DayKey(days[30]), models.DayKey(f.publisher.published[0].Date))
	assert.Equal(t, models.DayKey(days[39])+"\n", f.read(t, "published.txt"))

	res, err = f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Len(t, f.publisher.published, 10)
}

func TestRunRelabelsMissingLabeledPanel(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(30)
	f := newFixture(t, masterPanel(30))
	f.at(days[29])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)
	ledger := f.read(t, "states.txt")
	require.NoError(t, os.Remove(f.path("labeled.csv")))

	res, err := f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)
	assert.False(t, res.NoOp)
	assert.Zero(t, res.Appended["distance"])
	assert.Equal(t, ledger, f.read(t, "states.txt"))

	labeled, err := repository.NewLabeledCSVPanelStore(f.path("labeled.csv"), "EuclideanDist").Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, labeled.Len())
	for _, r := range labeled.Rows {
		assert.NotNil(t, r.Label, models.DayKey(r.Date))
	}
}

func TestReclassifyKeepsExistingLedgerDates(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(30)
	f := newFixture(t, masterPanel(30))
	f.at(days[29])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)
	ledger := f.read(t, "states.txt")

	f.clf.level = 0
	res, err := f.pipeline.Reclassify(ctx, "distance")
	require.NoError(t, err)
	assert.Zero(t, res.Appended["distance"])
	assert.Equal(t, ledger, f.read(t, "states.txt"))

	labeled, err := repository.NewLabeledCSVPanelStore(f.path("labeled.csv"), "EuclideanDist").Load(ctx)
	require.NoError(t, err)
	require.Equal(t, 30, labeled.Len())
	for _, r := range labeled.Rows {
		require.NotNil(t, r.Label)
		assert.Equal(t, models.Regime("Bull"), r.Label.Regime)
	}
}

func TestReclassifyRejectsUnknownClassifier(t *testing.T) {
	f := newFixture(t, masterPanel(5))
	_, err := f.pipeline.Reclassify(context.Background(), "threshold")
	assert.ErrorIs(t, err, ErrUnknownClassifier)
}

func TestRunWrapsStepFailure(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(30)
	f := newFixture(t, masterPanel(30))
	f.at(days[19])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	boom := errors.New("upstream down")
	f.market.err = boom
	f.at(days[29])
	_, err = f.pipeline.Run(ctx, models.RunRequest{})
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StepFetch, se.Step)
	assert.Equal(t, models.DayKey(days[19].AddDate(0, 0, 1)), models.DayKey(se.From))
	assert.ErrorIs(t, err, boom)

	// The lock was released.
	f.market.err = nil
	_, err = f.pipeline.Run(ctx, models.RunRequest{})
	assert.NoError(t, err)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, masterPanel(5))
	release, err := runlock.New(f.cache, nil).Acquire(context.Background(), time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = f.pipeline.Run(context.Background(), models.RunRequest{})
	assert.ErrorIs(t, err, domrepo.ErrLocked)
}

func TestRegimeReaderCachesUntilNextRun(t *testing.T) {
	ctx := context.Background()
	days := tradingDays(30)
	f := newFixture(t, masterPanel(30))
	f.at(days[19])
	_, err := f.pipeline.Rebuild(ctx)
	require.NoError(t, err)

	reader := NewRegimeReader(f.pipeline, f.cache, time.Hour, nil)
	got, err := reader.Latest(ctx, "distance", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.DayKey(days[19]), got[2].Date)

	f.at(days[29])
	_, err = f.pipeline.Run(ctx, models.RunRequest{})
	require.NoError(t, err)

	got, err = reader.Latest(ctx, "distance", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, models.DayKey(days[29]), got[2].Date)

	_, err = reader.Latest(ctx, "hysteresis", 3)
	assert.ErrorIs(t, err, ErrUnknownClassifier)
}
