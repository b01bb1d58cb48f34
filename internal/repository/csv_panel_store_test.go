package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
)

func samplePanel() *models.Panel {
	rsi := models.RSIKey(models.SymbolSP500, 14)
	p := &models.Panel{
		Fields:     []string{"Close_SP500", "Close_VIX"},
		Indicators: []models.IndicatorKey{rsi, models.BBWKey},
	}
	r1 := models.NewRow(day(2024, 1, 2))
	r1.SetField("Close_SP500", 4742.83)
	r1.SetField("Close_VIX", 13.2)
	r2 := models.NewRow(day(2024, 1, 3))
	r2.SetField("Close_SP500", 4704.81)
	r2.SetIndicator(rsi, models.Some(61.25))
	r2.SetIndicator(models.BBWKey, models.Some(0.0421))
	p.Rows = []models.Row{r1, r2}
	return p
}

func TestCSVPanelStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "panel.csv")
	s := NewCSVPanelStore(path)

	require.NoError(t, s.Save(ctx, samplePanel()))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"Date,Close_SP500,Close_VIX,RSI_14_SP500,BBW\n"+
			"2024-01-02,4742.83,13.2,,\n"+
			"2024-01-03,4704.81,,61.25,0.0421\n",
		string(raw))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Close_SP500", "Close_VIX"}, got.Fields)
	assert.Equal(t, []models.IndicatorKey{models.RSIKey(models.SymbolSP500, 14), models.BBWKey}, got.Indicators)
	require.Equal(t, 2, got.Len())
	assert.False(t, got.Rows[1].Field("Close_VIX").OK)
	assert.Equal(t, 61.25, got.Rows[1].Indicator(models.RSIKey(models.SymbolSP500, 14)).V)

	// Saving what was loaded reproduces the same bytes.
	require.NoError(t, s.Save(ctx, got))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, raw, again)
}

func TestCSVPanelStoreMissingFile(t *testing.T) {
	_, err := NewCSVPanelStore(filepath.Join(t.TempDir(), "nope.csv")).Load(context.Background())
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestCSVPanelStoreSkipsBadDatesAndKeepsLastDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "panel.csv")
	content := "Date,Close_SP500\n" +
		"2024-01-03,2\n" +
		"not-a-date,9\n" +
		"2024-01-02 00:00:00,1\n" +
		"2024-01-03,3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := NewCSVPanelStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	assert.Equal(t, day(2024, 1, 2), p.Rows[0].Date)
	assert.Equal(t, 1.0, p.Rows[0].Close(models.SymbolSP500).V)
	assert.Equal(t, 3.0, p.Rows[1].Close(models.SymbolSP500).V)
}

func TestCSVPanelStoreRejectsUnsorted(t *testing.T) {
	p := samplePanel()
	p.Rows[0], p.Rows[1] = p.Rows[1], p.Rows[0]
	err := NewCSVPanelStore(filepath.Join(t.TempDir(), "p.csv")).Save(context.Background(), p)
	assert.ErrorIs(t, err, models.ErrUnsortedPanel)
}

func TestLabeledCSVPanelStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "labeled.csv")
	s := NewLabeledCSVPanelStore(path, "EuclideanDist")

	p := samplePanel()
	l := label(day(2024, 1, 3), "Steady Climb", 1.5, "5d%: +3.50%, Score: [4, 2, 3]")
	p.Rows[1].Label = &l
	require.NoError(t, s.Save(ctx, p))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Date,Close_SP500,Close_VIX,RSI_14_SP500,BBW,MarketState,EuclideanDist,Diagnostics\n")
	assert.Contains(t, string(raw), `Steady Climb,1.5,"5d%: +3.50%, Score: [4, 2, 3]"`)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.Rows[0].Label)
	require.NotNil(t, got.Rows[1].Label)
	assert.Equal(t, l, *got.Rows[1].Label)
	assert.NotContains(t, got.Fields, "EuclideanDist")
}
