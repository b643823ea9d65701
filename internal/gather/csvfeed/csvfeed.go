// Package csvfeed fetches daily bars from an HTTP endpoint serving CSV in
// the classic Yahoo layout: Date,Open,High,Low,Close,Volume,Adj Close.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"barlab/internal/domain"
	"barlab/internal/gather"
	"barlab/internal/util"
)

var _ gather.Fetcher = (*Fetcher)(nil)

// ErrMalformed is returned for responses that are not a parseable bar CSV.
var ErrMalformed = errors.New("malformed csv feed")

// Fetcher downloads one CSV document per symbol. The request URL is
// BaseURL with symbol, start and end query parameters; start and end are
// omitted when the corresponding bound is zero.
type Fetcher struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// New creates a Fetcher for the feed at baseURL.
func New(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default().With("fetcher", "csv"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Name returns the fetcher identifier.
func (f *Fetcher) Name() string { return "csv" }

// FetchHistory downloads and parses the bars for symbol. Rows may be in any
// order. Client errors (4xx) are not retried.
func (f *Fetcher) FetchHistory(ctx context.Context, symbol string, r gather.DateRange) ([]domain.Bar, error) {
	u, err := f.requestURL(domain.NormalizeSymbol(symbol), r)
	if err != nil {
		return nil, util.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, util.Permanent(err)
	}
	req.Header.Set("Accept", "text/csv")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		err := fmt.Errorf("GET %s: %s", u, res.Status)
		if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, util.Permanent(err)
		}
		return nil, err
	}

	bars, err := Parse(res.Body)
	if err != nil {
		return nil, util.Permanent(fmt.Errorf("%s: %w", symbol, err))
	}
	f.log.Debug("retrieved csv data", "symbol", symbol, "bars", len(bars))
	return bars, nil
}

func (f *Fetcher) requestURL(symbol string, r gather.DateRange) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing feed url: %w", err)
	}
	params := u.Query()
	params.Set("symbol", symbol)
	if !r.Start.IsZero() {
		params.Set("start", r.Start.Format(domain.DateFormat))
	}
	if !r.End.IsZero() {
		params.Set("end", r.End.Format(domain.DateFormat))
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}

var columns = []string{"date", "open", "high", "low", "close", "volume", "adj close"}

// Parse reads a bar CSV with a header row. Columns are matched by name, case
// insensitively; "Adj Close" is optional and defaults to Close. Rows holding
// "null" values (non-trading placeholders) are skipped. Prices are rounded
// to cents.
func Parse(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range columns[:6] {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q: %w", c, ErrMalformed)
		}
	}
	adjIdx, hasAdj := idx["adj close"]

	var bars []domain.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < len(header) {
			return nil, fmt.Errorf("line %d: %d fields, want %d: %w", line, len(rec), len(header), ErrMalformed)
		}

		d, err := time.Parse(domain.DateFormat, strings.TrimSpace(rec[idx["date"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: date %q: %w", line, rec[idx["date"]], ErrMalformed)
		}

		var vals [6]float64
		skip := false
		for i, c := range columns[1:6] {
			raw := strings.TrimSpace(rec[idx[c]])
			if strings.EqualFold(raw, "null") {
				skip = true
				break
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s %q: %w", line, c, raw, ErrMalformed)
			}
			vals[i] = round2(v)
		}
		if skip {
			continue
		}
		vals[5] = vals[3]
		if hasAdj {
			raw := strings.TrimSpace(rec[adjIdx])
			if !strings.EqualFold(raw, "null") {
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					return nil, fmt.Errorf("line %d: adj close %q: %w", line, raw, ErrMalformed)
				}
				vals[5] = round2(v)
			}
		}

		bars = append(bars, domain.Bar{
			Date:     domain.DateOf(d),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
			AdjClose: vals[5],
		})
	}
	return bars, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
