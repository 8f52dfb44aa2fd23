package tendersource

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"tender-notifier/pkg/tender"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(&http.Client{Timeout: 5 * time.Second}, url, logger,
		WithAttempts(3), WithRetryDelay(time.Millisecond))
}

func TestSearchDecodesAndSendsParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tenders" {
			t.Errorf("path = %q, want /tenders", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("page") != "2" || q.Get("limit") != "50" || q.Get("query") != "road works" {
			t.Errorf("query params = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [{"title": "<b>Road</b>   Construction", "organisation": "PWD &amp; Co", "ref_no": "R1"}],
			"count": 1,
			"live_tenders": 15234,
			"has_more": true
		}`))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL+"/").Search(context.Background(), Query{Query: " road works ", Page: 2, Limit: 50})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("Search() items = %d, want 1", len(resp.Items))
	}
	if resp.Items[0].Title != "Road Construction" {
		t.Errorf("Title = %q, want %q", resp.Items[0].Title, "Road Construction")
	}
	if resp.Items[0].Organisation != "PWD & Co" {
		t.Errorf("Organisation = %q, want %q", resp.Items[0].Organisation, "PWD & Co")
	}
	if resp.Count != 1 || resp.LiveTenders != 15234 || !resp.HasMore {
		t.Errorf("Search() = %+v", resp)
	}
}

func TestSearchDefaultsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "1" {
			t.Errorf("page = %q, want 1", r.URL.Query().Get("page"))
		}
		if r.URL.Query().Has("query") {
			t.Error("empty query should not be sent")
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Search(context.Background(), Query{})
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if resp.Items == nil || len(resp.Items) != 0 {
		t.Errorf("Items = %v, want empty non-nil slice", resp.Items)
	}
	if resp.Count != 0 || resp.LiveTenders != 0 {
		t.Errorf("Search() = %+v, want zero counts", resp)
	}
}

func TestSearchNon2xxIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Search(context.Background(), Query{Page: 1, Limit: 50})
	if err == nil {
		t.Fatal("Search() should fail on 502")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("Search() error = %v, want *StatusError 502", err)
	}
	if !IsStatusError(err) {
		t.Error("IsStatusError() = false, want true")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream called %d times, want 1", got)
	}
}

func TestSearchRetriesTransportFailure(t *testing.T) {
	// A listener that accepts and immediately drops connections.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var accepted atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted.Add(1)
			_ = conn.Close()
		}
	}()
	defer func() { _ = ln.Close() }()

	_, err = testClient(t, "http://"+ln.Addr().String()).Search(context.Background(), Query{Page: 1})
	if err == nil {
		t.Fatal("Search() should fail when the connection drops")
	}
	if IsStatusError(err) {
		t.Errorf("transport failure reported as status error: %v", err)
	}
	if got := accepted.Load(); got < 2 {
		t.Errorf("accepted %d connections, want retries", got)
	}
}

func TestDebugError(t *testing.T) {
	tests := []struct {
		name    string
		resp    Response
		wantMsg string
		wantOK  bool
	}{
		{
			name:    "error marker with no items",
			resp:    Response{Debug: []string{"fetched page 1", "Error: portal timeout"}},
			wantMsg: "Error: portal timeout",
			wantOK:  true,
		},
		{
			name: "error marker but items present",
			resp: Response{Items: make([]tender.Tender, 1), Debug: []string{"error: partial"}},
		},
		{
			name: "no marker",
			resp: Response{Debug: []string{"ok"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := tt.resp.DebugError()
			if ok != tt.wantOK || msg != tt.wantMsg {
				t.Errorf("DebugError() = (%q, %v), want (%q, %v)", msg, ok, tt.wantMsg, tt.wantOK)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Plain title", want: "Plain title"},
		{in: "  spaced\n\ttitle  ", want: "spaced title"},
		{in: "<p>Supply of <i>pipes</i></p>", want: "Supply of pipes"},
		{in: "R&amp;D services", want: "R&D services"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		if got := cleanText(tt.in); got != tt.want {
			t.Errorf("cleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanTenders(t *testing.T) {
	items := []tender.Tender{
		{Title: " <b>Road</b>  repair ", Organisation: "PWD &amp; Roads", RefNo: " R-1 "},
		{Title: "Bridge", Organisation: "NHAI"},
	}
	CleanTenders(items)

	if items[0].Title != "Road repair" || items[0].Organisation != "PWD & Roads" {
		t.Errorf("CleanTenders() first = %+v", items[0])
	}
	if items[0].RefNo != " R-1 " {
		t.Errorf("CleanTenders() changed RefNo to %q", items[0].RefNo)
	}
	if items[1].Title != "Bridge" || items[1].Organisation != "NHAI" {
		t.Errorf("CleanTenders() second = %+v", items[1])
	}
	CleanTenders(nil)
}
