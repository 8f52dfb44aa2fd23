// Command tenderctl browses tenders from a terminal the way the dashboard does:
// it shows the cached list, runs searches and shares results with the site.
// It also loads scraper output into the snapshot row the site serves from.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tender-notifier/browser"
	"tender-notifier/config"
	"tender-notifier/tendersource"
)

var Version = "dev"

type options struct {
	user     string
	apiURL   string
	siteURL  string
	cacheDir string
	logLevel string
	json     bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "tenderctl",
		Short:         "Browse and search tenders from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.user, "user", "u", envOr("TENDER_USER", "local"), "user id the local cache belongs to")
	pf.StringVar(&opts.apiURL, "api", envOr("TENDER_API_URL", "http://localhost:8000"), "tender API base URL")
	pf.StringVar(&opts.siteURL, "site", envOr("SITE_URL", "http://localhost:8080"), "site URL for the shared tender cache")
	pf.StringVar(&opts.cacheDir, "cache-dir", defaultCacheDir(), "directory for the local tender cache")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVar(&opts.json, "json", false, "output as JSON")

	rootCmd.AddCommand(showCmd(opts))
	rootCmd.AddCommand(searchCmd(opts))
	rootCmd.AddCommand(clearCmd(opts))
	rootCmd.AddCommand(ingestCmd(opts))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func showCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show cached tenders (local cache first, then the site cache)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := newBrowser(opts, nil, 0)
			if err != nil {
				return err
			}
			st, err := b.Load(cmd.Context())
			if err != nil {
				return err
			}
			if len(st.Tenders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tenders cached yet. Run 'tenderctl search' to fetch some.")
				return nil
			}
			return render(cmd.OutOrStdout(), opts, st, b.Fresh())
		},
	}
}

func searchCmd(opts *options) *cobra.Command {
	var (
		query   string
		page    int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search the tender API and update the caches",
		Example: `  tenderctl search --query "road construction"
  tenderctl search --query bridge --page 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			errOut := cmd.ErrOrStderr()
			b, err := newBrowser(opts, func(loading bool) {
				if loading {
					fmt.Fprintln(errOut, "Searching tenders...")
				}
			}, timeout)
			if err != nil {
				return err
			}

			st, err := b.Search(cmd.Context(), query, page)
			var se *browser.SearchError
			if errors.As(err, &se) && se.Retryable {
				return fmt.Errorf("%s (retry with the same command)", se.Error())
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, st, true)
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "search text (empty lists all)")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "result page")
	cmd.Flags().DurationVar(&timeout, "timeout", browser.DefaultTimeout, "request timeout")
	return cmd
}

func clearCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the local tender cache for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := newBrowser(opts, nil, 0)
			if err != nil {
				return err
			}
			if err := b.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared local cache for %s\n", opts.user)
			return nil
		},
	}
}

func newBrowser(opts *options, onLoading func(bool), timeout time.Duration) (*browser.Browser, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLevel(opts.logLevel)}))

	local, err := browser.NewLocalStore(opts.cacheDir)
	if err != nil {
		return nil, err
	}

	cfg := &browser.Config{
		UserID:    opts.user,
		Local:     local,
		API:       tendersource.New(&http.Client{}, opts.apiURL, logger),
		Site:      browser.NewSiteClient(&http.Client{Timeout: 30 * time.Second}, opts.siteURL, logger),
		Logger:    logger,
		Timeout:   timeout,
		OnLoading: onLoading,
	}
	return browser.New(cfg), nil
}

func render(w io.Writer, opts *options, st browser.State, fresh bool) error {
	if opts.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	origin := st.Origin
	if st.FromCache {
		origin += " cache"
	}
	fmt.Fprintf(w, "%d tenders (page %d, %d total, %d live) from %s", len(st.Tenders), st.Page, st.TotalCount, st.LiveTendersCount, origin)
	if st.SearchQuery != "" {
		fmt.Fprintf(w, ", query %q", st.SearchQuery)
	}
	if !st.LastFetched.IsZero() {
		fmt.Fprintf(w, ", fetched %s", st.LastFetched.Local().Format("02 Jan 2006 15:04"))
		if !fresh {
			fmt.Fprint(w, " (stale)")
		}
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REF NO\tTITLE\tORGANISATION\tCLOSES")
	for _, t := range st.Tenders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.RefNo, truncate(t.Title, 60), truncate(t.Organisation, 40), t.ClosingDate)
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".tenderctl"
	}
	return filepath.Join(dir, "tenderctl")
}
