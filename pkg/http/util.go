package http

import (
	"time"

	xutil "github.com/carolinacraus/market-state-api/pkg/util"
)

// ParseDayDefault parses a YYYY-MM-DD day or returns def if empty/invalid.
func ParseDayDefault(s string, def time.Time) time.Time { return xutil.ParseDayDefault(s, def) }
