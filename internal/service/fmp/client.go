// Package fmp retrieves daily OHLCV history from the Financial Modeling Prep REST API.
package fmp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/carolinacraus/market-state-api/internal/domain/models"
	domrepo "github.com/carolinacraus/market-state-api/internal/domain/repository"
	pkghttp "github.com/carolinacraus/market-state-api/pkg/http"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
	"github.com/carolinacraus/market-state-api/pkg/util"
)

// symbolOrder fixes the column order of the raw panel.
var symbolOrder = []string{
	models.SymbolSP500, models.SymbolYield, models.SymbolDXY, models.SymbolOil,
	models.SymbolCopper, models.SymbolGold, models.SymbolVIX, models.SymbolRSP, models.SymbolSPY,
}

type historical struct {
	Date   string   `json:"date"`
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

type priceResponse struct {
	Symbol     string       `json:"symbol"`
	Historical []historical `json:"historical"`
}

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	// Tickers maps provider tickers to instrument symbols, e.g. "^GSPC" -> "SP500".
	Tickers     map[string]string
	RateLimit   float64
	Concurrency int
	Timeout     time.Duration
}

// Client implements MarketSource.
type Client struct {
	http    *pkghttp.Client
	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	l       *applogger.Logger
}

var _ domrepo.MarketSource = (*Client)(nil)

func New(cfg Config, opts ...pkghttp.ClientOption) *Client {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = max(1, int(cfg.RateLimit))
	}
	st := gobreaker.Settings{
		Name:    "fmp",
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// Client-side rejections say nothing about provider health.
			var se *pkghttp.StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	opts = append([]pkghttp.ClientOption{pkghttp.WithTimeout(cfg.Timeout)}, opts...)
	return &Client{
		http:    pkghttp.NewClient(opts...),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// SetLogger injects a structured logger.
func (c *Client) SetLogger(l *applogger.Logger) { c.l = l }

// FetchBars downloads every configured ticker between from and to inclusive
// and joins them on date. Weekend rows are dropped. When SP500 is configured
// only its trading days are kept, which excludes exchange holidays on which
// futures still print.
func (c *Client) FetchBars(ctx context.Context, from, to time.Time) (*models.Panel, error) {
	tickers := c.orderedTickers()
	results := make([]priceResponse, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, ticker := range tickers {
		g.Go(func() error {
			resp, err := c.fetch(gctx, ticker, from, to)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", ticker, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := &models.Panel{}
	pos := make(map[string]int)
	anchor := map[string]bool{}
	hasAnchor := false
	for i, ticker := range tickers {
		symbol := c.cfg.Tickers[ticker]
		for _, attr := range models.BarAttributes {
			p.AddField(models.FieldName(attr, symbol))
		}
		// SP500 days define the trading calendar even when none came back.
		if symbol == models.SymbolSP500 {
			hasAnchor = true
		}
		if len(results[i].Historical) == 0 {
			c.l.Warn("no historical data", applogger.String("ticker", ticker))
			continue
		}
		for _, h := range results[i].Historical {
			date, ok := util.ParseDay(h.Date)
			if !ok || util.IsWeekend(date) || date.Before(from) || date.After(to) {
				continue
			}
			key := models.DayKey(date)
			idx, seen := pos[key]
			if !seen {
				idx = len(p.Rows)
				pos[key] = idx
				p.Rows = append(p.Rows, models.NewRow(date))
			}
			toBar(h).Set(&p.Rows[idx], symbol)
			if symbol == models.SymbolSP500 {
				anchor[key] = true
			}
		}
	}
	if hasAnchor {
		p = p.Filter(func(r models.Row) bool { return anchor[models.DayKey(r.Date)] })
	}
	p.SortByDate()

	c.l.Info("market bars fetched",
		applogger.Date("from", from),
		applogger.Date("to", to),
		applogger.Int("tickers", len(tickers)),
		applogger.Int("rows", p.Len()),
	)
	return p, nil
}

func (c *Client) fetch(ctx context.Context, ticker string, from, to time.Time) (priceResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return priceResponse{}, err
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp priceResponse
		err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
			Method: pkghttp.MethodGet,
			URL:    strings.TrimRight(c.cfg.BaseURL, "/") + "/historical-price-full/" + url.PathEscape(ticker),
			QueryParams: map[string][]string{
				"from":   {util.FormatDay(from)},
				"to":     {util.FormatDay(to)},
				"apikey": {c.cfg.APIKey},
			},
		}, &resp)
		return resp, err
	})
	if err != nil {
		c.l.Error("market fetch failed",
			applogger.String("ticker", ticker),
			applogger.String("breaker", c.breaker.State().String()),
			applogger.Error(err),
		)
		return priceResponse{}, err
	}
	return out.(priceResponse), nil
}

func (c *Client) orderedTickers() []string {
	rank := make(map[string]int, len(symbolOrder))
	for i, s := range symbolOrder {
		rank[s] = i
	}
	tickers := make([]string, 0, len(c.cfg.Tickers))
	for t := range c.cfg.Tickers {
		tickers = append(tickers, t)
	}
	sort.Slice(tickers, func(i, j int) bool {
		si, sj := c.cfg.Tickers[tickers[i]], c.cfg.Tickers[tickers[j]]
		ri, iok := rank[si]
		rj, jok := rank[sj]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return si < sj
		}
	})
	return tickers
}

func toBar(h historical) models.Bar {
	v := func(p *float64) models.Value {
		if p == nil {
			return models.None
		}
		return models.Some(*p)
	}
	return models.Bar{Open: v(h.Open), High: v(h.High), Low: v(h.Low), Close: v(h.Close), Volume: v(h.Volume)}
}
