// Package storage handles persistence of the tender snapshot and per-user onboarding rows.
package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"tender-notifier/pkg/tender"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("storage: object doesn't exist")

// Store is implemented by every backend.
type Store interface {
	Snapshot(ctx context.Context) (*tender.Snapshot, error)
	SaveSnapshot(ctx context.Context, snap *tender.Snapshot) error
	Profile(ctx context.Context, userID string) (*tender.Profile, error)
	SaveProfile(ctx context.Context, p *tender.Profile) error
	Preferences(ctx context.Context, userID string) (*tender.AlertPreferences, error)
	SavePreferences(ctx context.Context, p *tender.AlertPreferences) error
}

// IsNotFound reports whether err means the row was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

const snapshotKey = "latest_snapshot.json"

// userKey derives a filesystem and bucket safe object name for a user row.
// User ids come from the auth backend and are never used verbatim as paths.
func userKey(kind, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("empty user id")
	}
	h := sha256.Sum256([]byte(userID))
	return fmt.Sprintf("%s-%x.json", kind, h[:16]), nil
}
