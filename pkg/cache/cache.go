// Package cache defines the prompt expansion cache contract shared by the
// memory, sqlite and redis backends.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/iconforge/iconforge/pkg/models"
)

// DefaultTTL is how long an expansion stays usable.
const DefaultTTL = time.Hour

// Status is the outcome of a cache lookup.
type Status int

const (
	Miss Status = iota
	Hit
	Expired
)

func (s Status) String() string {
	switch s {
	case Hit:
		return "hit"
	case Expired:
		return "expired"
	default:
		return "miss"
	}
}

// Lookup is the result of Store.Get. Entry is only meaningful on a Hit.
type Lookup struct {
	Status Status
	Entry  models.ExpansionEntry
}

// Found reports whether the lookup produced a usable entry.
func (l Lookup) Found() bool {
	return l.Status == Hit
}

// Key identifies an expansion by its normalized topic and color hint.
type Key string

// NewKey derives the cache key for a topic and optional color hint.
// Topics are compared case-insensitively with whitespace collapsed; an empty
// color hint is the same as an absent one.
func NewKey(topic, colors string) Key {
	k := struct {
		Topic  string  `json:"topic"`
		Colors *string `json:"colors"`
	}{Topic: normalize(topic)}
	if c := normalize(colors); c != "" {
		k.Colors = &c
	}
	data, _ := json.Marshal(k)
	return Key(fmt.Sprintf("%x", sha256.Sum256(data)))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Store is a time-bounded map from expansion keys to item lists.
type Store interface {
	// Get returns the entry for key. Expired entries are reported as Expired
	// and must be treated as absent.
	Get(ctx context.Context, key Key) (Lookup, error)
	// Put stores items under key, replacing any existing entry.
	Put(ctx context.Context, key Key, items []string, ttl time.Duration) error
	// Stats returns cache performance metrics.
	Stats(ctx context.Context) (models.CacheStats, error)
	// Clear removes entries. With expiredOnly only expired entries go.
	Clear(ctx context.Context, expiredOnly bool) error
	// Close releases resources.
	Close() error
}

// NewEntry builds an entry created at now that expires after ttl.
func NewEntry(items []string, now time.Time, ttl time.Duration) models.ExpansionEntry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return models.ExpansionEntry{
		Items:     append([]string(nil), items...),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
