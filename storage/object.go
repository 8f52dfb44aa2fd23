package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"

	"tender-notifier/pkg/tender"
)

// Objects stores each row as a JSON object in Cloud Storage, or as a file
// under localPath when running in local development mode.
type Objects struct {
	client    *storage.Client
	logger    *slog.Logger
	localPath string
	bucket    string
}

// NewObjects creates an object store. Pass a nil client with a non-empty
// localPath for filesystem storage.
func NewObjects(client *storage.Client, bucket string, localPath string, logger *slog.Logger) *Objects {
	return &Objects{
		client:    client,
		logger:    logger,
		localPath: localPath,
		bucket:    bucket,
	}
}

// Snapshot loads the latest snapshot row.
func (o *Objects) Snapshot(ctx context.Context) (*tender.Snapshot, error) {
	var snap tender.Snapshot
	if err := o.readJSON(ctx, snapshotKey, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot overwrites the snapshot row wholesale.
func (o *Objects) SaveSnapshot(ctx context.Context, snap *tender.Snapshot) error {
	snap.ID = tender.SnapshotID
	if err := o.writeJSON(ctx, snapshotKey, snap); err != nil {
		return err
	}
	o.logger.Info("Snapshot saved", "tenders", len(snap.Payload), "live_tenders", snap.LiveTenders)
	return nil
}

// Profile loads a user's onboarding profile.
func (o *Objects) Profile(ctx context.Context, userID string) (*tender.Profile, error) {
	key, err := userKey("profile", userID)
	if err != nil {
		return nil, err
	}
	var p tender.Profile
	if err := o.readJSON(ctx, key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile upserts a user's profile.
func (o *Objects) SaveProfile(ctx context.Context, p *tender.Profile) error {
	key, err := userKey("profile", p.UserID)
	if err != nil {
		return err
	}
	return o.writeJSON(ctx, key, p)
}

// Preferences loads a user's alert preferences.
func (o *Objects) Preferences(ctx context.Context, userID string) (*tender.AlertPreferences, error) {
	key, err := userKey("prefs", userID)
	if err != nil {
		return nil, err
	}
	var p tender.AlertPreferences
	if err := o.readJSON(ctx, key, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePreferences upserts a user's alert preferences.
func (o *Objects) SavePreferences(ctx context.Context, p *tender.AlertPreferences) error {
	key, err := userKey("prefs", p.UserID)
	if err != nil {
		return err
	}
	return o.writeJSON(ctx, key, p)
}

func (o *Objects) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	o.logger.Debug("Saving object", "key", key, "bytes", len(data))

	// Local filesystem storage
	if o.localPath != "" {
		filePath := filepath.Join(o.localPath, key)
		if err := os.WriteFile(filePath, data, 0o600); err != nil {
			return fmt.Errorf("write to local storage: %w", err)
		}
		return nil
	}

	// Cloud Storage with retry logic for reliability
	err = retry.Do(
		func() error {
			w := o.client.Bucket(o.bucket).Object(key).NewWriter(ctx)
			w.ContentType = "application/json"
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					o.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write to storage: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close storage writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(2*time.Minute),
		retry.MaxJitter(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			o.logger.Info("Retrying save operation after error", "attempt", n, "key", key, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save after retries: %w", err)
	}
	return nil
}

func (o *Objects) readJSON(ctx context.Context, key string, v any) error {
	var data []byte

	// Local filesystem storage
	if o.localPath != "" {
		var err error
		data, err = os.ReadFile(filepath.Join(o.localPath, key))
		if err != nil {
			if os.IsNotExist(err) {
				return ErrNotFound
			}
			return fmt.Errorf("read from local storage: %w", err)
		}
	} else {
		// Cloud Storage with retry logic for reliability
		notFound := false
		err := retry.Do(
			func() error {
				r, openErr := o.client.Bucket(o.bucket).Object(key).NewReader(ctx)
				if openErr != nil {
					// Don't retry on "not found" errors
					if errors.Is(openErr, storage.ErrObjectNotExist) {
						notFound = true
						return retry.Unrecoverable(fmt.Errorf("open storage reader: %w", openErr))
					}
					return fmt.Errorf("open storage reader: %w", openErr)
				}
				defer func() {
					if closeErr := r.Close(); closeErr != nil {
						o.logger.Warn("Failed to close storage reader", "error", closeErr)
					}
				}()

				var readErr error
				data, readErr = io.ReadAll(r)
				if readErr != nil {
					return fmt.Errorf("read from storage: %w", readErr)
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(time.Second),
			retry.MaxDelay(2*time.Minute),
			retry.MaxJitter(10*time.Second),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, retryErr error) {
				o.logger.Info("Retrying load operation after error", "attempt", n, "key", key, "error", retryErr)
			}),
		)
		if notFound {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load after retries: %w", err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
