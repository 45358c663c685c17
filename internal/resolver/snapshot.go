// Package resolver turns the short snapshot ids shown by the CLI back into
// full ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/vista/internal/surface"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// MinShortIDLength is the minimum length of a short id.
const MinShortIDLength = 6

// ShortID returns the form of id shown in tables: its trailing characters,
// which come from the random part of the ULID rather than the timestamp.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}

// Snapshots is the part of the snapshot store the resolver reads.
type Snapshots interface {
	Get(ctx context.Context, id string) (surface.Snapshot, error)
	List(ctx context.Context, docURI string) ([]surface.Snapshot, error)
}

// ResolveSnapshotID resolves shortID to the full id of one of docURI's
// snapshots. A full ULID is checked for existence; anything else must be
// at least MinShortIDLength characters and match the end of exactly one id.
func ResolveSnapshotID(ctx context.Context, store Snapshots, docURI, shortID string) (string, error) {
	if _, err := ulid.ParseStrict(shortID); err == nil {
		if _, err := store.Get(ctx, shortID); err != nil {
			if errors.Is(err, redis.Nil) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify snapshot existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	snaps, err := store.List(ctx, docURI)
	if err != nil {
		return "", fmt.Errorf("failed to search for snapshot: %w", err)
	}

	var matches []string
	needle := strings.ToUpper(shortID)
	for _, s := range snaps {
		if strings.HasSuffix(s.ID, needle) {
			matches = append(matches, s.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no snapshot matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no snapshots found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple snapshots matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d snapshots", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to 10 of the matching ids.
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Short ID '%s' matches %d snapshots:\n", err.ShortID, len(err.Matches))

	shown := min(len(err.Matches), 10)
	for _, id := range err.Matches[:shown] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > shown {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-shown)
	}

	b.WriteString("\nUse a longer ID to pick one snapshot.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
