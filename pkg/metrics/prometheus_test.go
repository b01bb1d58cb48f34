package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)
	r.now = func() time.Time { return time.Unix(1704326400, 0) }

	r.RecordRowsAppended("MarketStates_System_A.txt", 3)
	r.RecordRowsAppended("MarketStates_System_A.txt", 2)
	r.RecordError("fetch")
	r.RecordRun(true)
	r.RecordRun(false)
	r.RecordRegime("distance", "Steady Climb")
	r.RecordRegime("distance", "Sharp Decline")

	assert.Equal(t, 5.0, testutil.ToFloat64(r.rowsAppended.WithLabelValues("MarketStates_System_A.txt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("error")))
	assert.Equal(t, 1704326400.0, testutil.ToFloat64(r.lastSuccess))
	assert.Equal(t, 1, testutil.CollectAndCount(r.regime))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regime.WithLabelValues("distance", "Sharp Decline")))
}
