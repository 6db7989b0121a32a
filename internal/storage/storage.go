package storage

import (
	"context"
	"errors"

	"github.com/ButyrinIA/lostfound/internal/models"
)

var ErrPostNotFound = errors.New("post not found")

// Storage is the document store for feed posts. CreatePost assigns the id
// and the creation timestamp and writes them back into post.
type Storage interface {
	CreatePost(ctx context.Context, post *models.Post) (string, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
	ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error)
	// SubscribePosts delivers the newest limit posts now and after every
	// change, until ctx is done. Slow readers only see the latest snapshot.
	SubscribePosts(ctx context.Context, limit int) (<-chan models.FeedSnapshot, error)
	Close() error
}

// AdminDirectory holds the admin flag per subject.
type AdminDirectory interface {
	LookupAdmin(ctx context.Context, subjectID string) (*models.AdminRecord, error)
	SetAdmin(ctx context.Context, subjectID string, isAdmin bool) error
}

// Backend is what the service composes: both stores live in one database.
type Backend interface {
	Storage
	AdminDirectory
}

const DefaultFeedLimit = 50

// ClampLimit maps non-positive limits to DefaultFeedLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultFeedLimit
	}
	return limit
}

// Offer replaces whatever is buffered in ch with snap. ch must have capacity
// one and a single sender.
func Offer(ch chan models.FeedSnapshot, snap models.FeedSnapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- snap
}
