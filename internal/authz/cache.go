// Package authz answers "is this subject an admin?" against an external
// directory, caching answers for a bounded time.
package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/models"
)

const (
	DefaultTTL  = 5 * time.Minute
	DefaultSize = 4096
)

// ErrAuthorityUnavailable wraps any failure of the directory lookup.
var ErrAuthorityUnavailable = errors.New("admin authority unavailable")

// Directory is the external authority for admin status. LookupAdmin returns
// (nil, nil) when the subject has no record.
type Directory interface {
	LookupAdmin(ctx context.Context, subjectID string) (*models.AdminRecord, error)
}

// Observer receives one event per IsAdmin/Verify call: "hit", "miss" or
// "error". It may be nil.
type Observer interface {
	ObserveAdminLookup(result string)
}

type entry struct {
	isAdmin    bool
	verifiedAt time.Time
}

type Options struct {
	TTL      time.Duration
	Size     int
	Now      func() time.Time
	Observer Observer
}

// Cache is safe for concurrent use. Entries are independent; a write for one
// subject overwrites only that subject's entry.
type Cache struct {
	dir      Directory
	entries  *lru.Cache[string, entry]
	ttl      time.Duration
	now      func() time.Time
	observer Observer
	logger   *zap.Logger
}

func NewCache(dir Directory, opts Options, logger *zap.Logger) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := lru.New[string, entry](opts.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin cache: %w", err)
	}
	return &Cache{
		dir:      dir,
		entries:  entries,
		ttl:      opts.TTL,
		now:      opts.Now,
		observer: opts.Observer,
		logger:   logger,
	}, nil
}

// IsAdmin is Verify with the error folded into a denial.
func (c *Cache) IsAdmin(ctx context.Context, subjectID string) bool {
	ok, _ := c.Verify(ctx, subjectID)
	return ok
}

// Verify reports whether subjectID is an admin. An empty subject is never an
// admin and costs no lookup. A lookup failure denies and is not cached, so
// the next call asks the directory again.
func (c *Cache) Verify(ctx context.Context, subjectID string) (bool, error) {
	if subjectID == "" {
		return false, nil
	}

	if e, ok := c.entries.Get(subjectID); ok && c.now().Sub(e.verifiedAt) < c.ttl {
		c.observe("hit")
		return e.isAdmin, nil
	}

	rec, err := c.dir.LookupAdmin(ctx, subjectID)
	if err != nil {
		c.observe("error")
		c.logger.Warn("admin_lookup_failed", zap.String("subject_id", subjectID), zap.Error(err))
		return false, fmt.Errorf("%w: %w", ErrAuthorityUnavailable, err)
	}
	c.observe("miss")

	isAdmin := rec != nil && rec.IsAdmin
	c.entries.Add(subjectID, entry{isAdmin: isAdmin, verifiedAt: c.now()})
	return isAdmin, nil
}

// Invalidate drops the cached answer for one subject.
func (c *Cache) Invalidate(subjectID string) {
	c.entries.Remove(subjectID)
}

// InvalidateAll drops every cached answer. The server exposes it as
// DELETE /api/admins/cache.
func (c *Cache) InvalidateAll() {
	c.entries.Purge()
}

// Len is the number of cached entries, fresh or stale.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveAdminLookup(result)
	}
}
