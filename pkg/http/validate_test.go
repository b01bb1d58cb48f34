package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type regimesQuery struct {
	Classifier string `query:"classifier" default:"distance" validate:"oneof=threshold distance hysteresis"`
	Limit      int    `query:"limit" default:"30" validate:"gte=1,lte=5000"`
}

func bindQuery(t *testing.T, query string) (*regimesQuery, interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/regimes?"+query, nil)
	c := echo.New().NewContext(req, httptest.NewRecorder())
	out := &regimesQuery{}
	return out, ReadAndValidateRequest(c, out)
}

func TestReadAndValidateRequestFillsDefaults(t *testing.T) {
	q, verr := bindQuery(t, "")
	require.Nil(t, verr)
	assert.Equal(t, "distance", q.Classifier)
	assert.Equal(t, 30, q.Limit)
}

func TestReadAndValidateRequestReportsFields(t *testing.T) {
	_, verr := bindQuery(t, "classifier=momentum&limit=9999")
	require.NotNil(t, verr)
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 2)

	assert.Equal(t, "ERR_ONEOF", errs[0].Code)
	assert.Equal(t, "Classifier must be one of: threshold, distance, hysteresis", errs[0].Message)
	assert.Equal(t, "ERR_LTE", errs[1].Code)
	assert.Equal(t, "5000", errs[1].Params["max"])
}
