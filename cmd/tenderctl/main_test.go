package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tender-notifier/browser"
	"tender-notifier/config"
	"tender-notifier/pkg/tender"
	"tender-notifier/storage"
)

func TestBuildSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	scraped := time.Date(2026, 2, 28, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		in          string
		wantErr     bool
		wantNil     bool
		wantCount   int
		wantLive    int
		wantScraped time.Time
		wantTitle   string
		wantOrg     string
	}{
		{
			name:        "full payload",
			in:          `{"items":[{"title":"Road"},{"title":"Bridge"}],"count":120,"live_tenders":80,"scraped_at":"2026-02-28T18:30:00Z"}`,
			wantCount:   120,
			wantLive:    80,
			wantScraped: scraped,
		},
		{
			name:        "count defaults to items",
			in:          `{"items":[{"title":"Road"}]}`,
			wantCount:   1,
			wantScraped: now,
		},
		{
			name:        "no items keeps payload null",
			in:          `{"count":0}`,
			wantNil:     true,
			wantScraped: now,
		},
		{
			name:        "markup cleaned like API results",
			in:          `{"items":[{"title":"  Road <b>repair</b>\n works ","organisation":"PWD &amp; Roads"}]}`,
			wantCount:   1,
			wantScraped: now,
			wantTitle:   "Road repair works",
			wantOrg:     "PWD & Roads",
		},
		{name: "malformed", in: `{"items":`, wantErr: true},
		{name: "negative count", in: `{"items":[],"count":-1}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := buildSnapshot(strings.NewReader(tt.in), now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("buildSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if snap.ID != 1 {
				t.Errorf("ID = %d, want 1", snap.ID)
			}
			if (snap.Payload == nil) != tt.wantNil {
				t.Errorf("Payload = %v, want nil %v", snap.Payload, tt.wantNil)
			}
			if snap.Count != tt.wantCount {
				t.Errorf("Count = %d, want %d", snap.Count, tt.wantCount)
			}
			if snap.LiveTenders != tt.wantLive {
				t.Errorf("LiveTenders = %d, want %d", snap.LiveTenders, tt.wantLive)
			}
			if !snap.ScrapedAt.Equal(tt.wantScraped) {
				t.Errorf("ScrapedAt = %v, want %v", snap.ScrapedAt, tt.wantScraped)
			}
			if tt.wantTitle != "" && snap.Payload[0].Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", snap.Payload[0].Title, tt.wantTitle)
			}
			if tt.wantOrg != "" && snap.Payload[0].Organisation != tt.wantOrg {
				t.Errorf("Organisation = %q, want %q", snap.Payload[0].Organisation, tt.wantOrg)
			}
		})
	}
}

func TestIngestCommandWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "scrape.json")
	if err := os.WriteFile(payload, []byte(`{"items":[{"title":"Road","ref_no":"R-1"}],"live_tenders":7}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_BUCKET", "")

	cmd := ingestCmd(&options{logLevel: "error"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{payload, "--local-path", filepath.Join(dir, "data")})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	if !strings.Contains(out.String(), "1 tenders") {
		t.Errorf("output = %q, want tender count", out.String())
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, closeFn, err := storage.Open(context.Background(), config.StorageConfig{LocalPath: filepath.Join(dir, "data")}, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	snap, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Payload) != 1 || snap.Payload[0].RefNo != "R-1" || snap.LiveTenders != 7 {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"construction of road", 10, "construct…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	st := browser.State{
		Tenders:          []tender.Tender{{Title: "Road repair", RefNo: "R-1", Organisation: "PWD", ClosingDate: "10-Mar-2026"}},
		TotalCount:       1,
		LiveTendersCount: 1,
		LastFetched:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		SearchQuery:      "road",
		Page:             1,
		FromCache:        true,
		Origin:           browser.OriginLocal,
	}

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := render(&buf, &options{}, st, false); err != nil {
			t.Fatalf("render() error = %v", err)
		}
		out := buf.String()
		for _, want := range []string{"1 tenders", "local cache", `query "road"`, "(stale)", "REF NO", "R-1", "PWD"} {
			if !strings.Contains(out, want) {
				t.Errorf("render() output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := render(&buf, &options{json: true}, st, true); err != nil {
			t.Fatalf("render() error = %v", err)
		}
		var got browser.State
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("render() produced invalid JSON: %v", err)
		}
		if len(got.Tenders) != 1 || got.SearchQuery != "road" {
			t.Errorf("render() JSON = %+v", got)
		}
	})
}
