package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tender-notifier/config"
	"tender-notifier/pkg/tender"
	"tender-notifier/storage"
	"tender-notifier/tendersource"
)

// scrapePayload is the scraper's output: the same shape the tender API returns.
type scrapePayload struct {
	Items       []tender.Tender `json:"items"`
	Count       int             `json:"count"`
	LiveTenders int             `json:"live_tenders"`
	ScrapedAt   *time.Time      `json:"scraped_at"`
}

func ingestCmd(opts *options) *cobra.Command {
	var sc config.StorageConfig

	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Load a scraped tender payload into the snapshot row (use - for stdin)",
		Example: `  tenderctl ingest scrape.json --local-path ./data
  scraper | tenderctl ingest - --database-url "$DATABASE_URL"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open payload: %w", err)
				}
				defer func() {
					_ = f.Close()
				}()
				in = f
			}

			snap, err := buildSnapshot(in, time.Now().UTC())
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(opts.logLevel)}))
			store, closeStore, err := storage.Open(cmd.Context(), sc, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.SaveSnapshot(cmd.Context(), snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored snapshot: %d tenders (%d total, %d live), scraped %s\n",
				len(snap.Payload), snap.Count, snap.LiveTenders, snap.ScrapedAt.Format(time.RFC3339))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&sc.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection string")
	f.StringVar(&sc.Bucket, "bucket", os.Getenv("STORAGE_BUCKET"), "Cloud Storage bucket")
	f.StringVar(&sc.LocalPath, "local-path", envOr("LOCAL_STORAGE", "./data"), "local storage directory (used when no database or bucket is set)")
	return cmd
}

// buildSnapshot decodes a scrape payload. A missing count falls back to the
// number of items and a missing scraped_at to now.
func buildSnapshot(r io.Reader, now time.Time) (*tender.Snapshot, error) {
	var p scrapePayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p.Count < 0 || p.LiveTenders < 0 {
		return nil, fmt.Errorf("negative counts in payload (count=%d, live_tenders=%d)", p.Count, p.LiveTenders)
	}

	tendersource.CleanTenders(p.Items)

	snap := &tender.Snapshot{
		ID:          tender.SnapshotID,
		Payload:     p.Items,
		LiveTenders: p.LiveTenders,
		Count:       p.Count,
		ScrapedAt:   now,
	}
	if snap.Count == 0 {
		snap.Count = len(p.Items)
	}
	if p.ScrapedAt != nil && !p.ScrapedAt.IsZero() {
		snap.ScrapedAt = p.ScrapedAt.UTC()
	}
	return snap, nil
}
