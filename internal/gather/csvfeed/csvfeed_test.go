package csvfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"barlab/internal/domain"
	"barlab/internal/gather"
	"barlab/internal/util"
)

const sampleCSV = `Date,Open,High,Low,Close,Volume,Adj Close
2016-12-16,113.410004,114.489998,113.059998,113.480003,44055000,110.906036
2016-12-15,113.360001,114.800003,113.239998,114.010002,40812000,111.423996
2016-12-14,113.129997,113.989998,112.730003,113.279999,35060000,110.710426
`

func TestParse(t *testing.T) {
	bars, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("len = %d, want 3", len(bars))
	}

	b := bars[0]
	if !b.Date.Equal(time.Date(2016, 12, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", b.Date)
	}
	if b.Open != 113.41 || b.High != 114.49 || b.Low != 113.06 || b.Close != 113.48 {
		t.Errorf("OHLC = %v/%v/%v/%v, want rounded to cents", b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume != 44055000 || b.AdjClose != 110.91 {
		t.Errorf("Volume/AdjClose = %v/%v", b.Volume, b.AdjClose)
	}

	// Newest-first feeds become a valid oldest-first series.
	s, err := domain.NewSeries("AAPL", bars)
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	if first, _ := s.First(); first.Date.Day() != 14 {
		t.Errorf("first = %v, want 2016-12-14", first.Date)
	}
}

func TestParseColumnOrderAndOptionalAdjClose(t *testing.T) {
	in := "close,date,volume,low,high,open\n10.005,2024-06-03,100,9,11,9.5\n"
	bars, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(bars) != 1 {
		t.Fatalf("len = %d, want 1", len(bars))
	}
	b := bars[0]
	if b.Open != 9.5 || b.High != 11 || b.Low != 9 || b.Volume != 100 {
		t.Errorf("bar = %+v", b)
	}
	if b.AdjClose != b.Close {
		t.Errorf("AdjClose = %v, want Close %v when the column is absent", b.AdjClose, b.Close)
	}
}

func TestParseSkipsNullRows(t *testing.T) {
	in := "Date,Open,High,Low,Close,Volume,Adj Close\n" +
		"2024-06-03,1,1,1,1,1,1\n" +
		"2024-06-04,null,null,null,null,null,null\n"
	bars, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("len = %d, want 1", len(bars))
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing column", "Date,Open,High,Low,Close\n2024-06-03,1,1,1,1\n"},
		{"bad date", "Date,Open,High,Low,Close,Volume\n06/03/2024,1,1,1,1,1\n"},
		{"bad number", "Date,Open,High,Low,Close,Volume\n2024-06-03,1,x,1,1,1\n"},
		{"short row", "Date,Open,High,Low,Close,Volume\n2024-06-03,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.in)); !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}

	bars, err := Parse(strings.NewReader(""))
	if err != nil || len(bars) != 0 {
		t.Errorf("Parse(empty) = %v, %v; want no bars, no error", bars, err)
	}
}

func TestFetchHistory(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	f := New(srv.URL+"/prices?fmt=csv", WithHTTPClient(srv.Client()))
	if f.Name() != "csv" {
		t.Errorf("Name() = %q", f.Name())
	}
	bars, err := f.FetchHistory(context.Background(), "aapl", gather.DateRange{
		Start: time.Date(2016, 12, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2016, 12, 16, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(bars) != 3 {
		t.Errorf("len = %d, want 3", len(bars))
	}

	q := gotQuery.Load().(string)
	for _, want := range []string{"symbol=AAPL", "start=2016-12-01", "end=2016-12-16", "fmt=csv"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
}

func TestFetchHistoryStatusErrors(t *testing.T) {
	var hits, status atomic.Int32
	status.Store(http.StatusNotFound)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", int(status.Load()))
	}))
	defer srv.Close()

	f := New(srv.URL, WithHTTPClient(srv.Client()))
	ctx := context.Background()
	fetch := func() error {
		_, err := f.FetchHistory(ctx, "ZZZZ", gather.DateRange{})
		return err
	}

	// A 404 is permanent: Retry gives up after one attempt.
	if err := util.Retry(ctx, 3, time.Millisecond, fetch); err == nil {
		t.Fatal("expected error for 404")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("404 attempted %d times, want 1", n)
	}

	// A 503 is retried.
	status.Store(http.StatusServiceUnavailable)
	hits.Store(0)
	if err := util.Retry(ctx, 3, time.Millisecond, fetch); err == nil {
		t.Fatal("expected error for 503")
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("503 attempted %d times, want 3", n)
	}
}
