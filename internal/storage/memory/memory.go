package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ButyrinIA/lostfound/internal/models"
	"github.com/ButyrinIA/lostfound/internal/storage"
)

type subscriber struct {
	ch    chan models.FeedSnapshot
	limit int
}

type MemoryStorage struct {
	posts       map[string]*models.Post
	admins      map[string]*models.AdminRecord
	subscribers map[*subscriber]struct{}
	now         func() time.Time
	mu          sync.RWMutex
}

func New() *MemoryStorage {
	return &MemoryStorage{
		posts:       make(map[string]*models.Post),
		admins:      make(map[string]*models.AdminRecord),
		subscribers: make(map[*subscriber]struct{}),
		now:         time.Now,
	}
}

// NewWithClock is New with an injected clock for creation timestamps.
func NewWithClock(now func() time.Time) *MemoryStorage {
	s := New()
	s.now = now
	return s
}

func (s *MemoryStorage) CreatePost(ctx context.Context, post *models.Post) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post.ID = uuid.New().String()
	post.CreatedAt = s.now().UTC()
	if post.LikedBy == nil {
		post.LikedBy = []string{}
	}
	cp := *post
	s.posts[post.ID] = &cp

	s.publishLocked()
	return post.ID, nil
}

func (s *MemoryStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, storage.ErrPostNotFound
	}
	cp := *post
	return &cp, nil
}

func (s *MemoryStorage) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[id]; !exists {
		return storage.ErrPostNotFound
	}
	delete(s.posts, id)

	s.publishLocked()
	return nil
}

// sortedLocked returns posts newest first, ties broken by id.
func (s *MemoryStorage) sortedLocked() []*models.Post {
	posts := make([]*models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		cp := *p
		posts = append(posts, &cp)
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts
}

func (s *MemoryStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	limit = storage.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := s.sortedLocked()

	// Применение курсора: следующая страница начинается после поста с этим id
	startIdx := 0
	if cursor != nil {
		startIdx = len(posts)
		for i, post := range posts {
			if post.ID == *cursor {
				startIdx = i + 1
				break
			}
		}
	}

	endIdx := startIdx + limit
	if endIdx > len(posts) {
		endIdx = len(posts)
	}

	result := posts[startIdx:endIdx]
	var nextCursor *string
	if endIdx < len(posts) {
		cursorVal := posts[endIdx-1].ID
		nextCursor = &cursorVal
	}

	return &models.PaginatedPosts{
		Posts:      result,
		NextCursor: nextCursor,
	}, nil
}

func (s *MemoryStorage) SubscribePosts(ctx context.Context, limit int) (<-chan models.FeedSnapshot, error) {
	sub := &subscriber{ch: make(chan models.FeedSnapshot, 1), limit: storage.ClampLimit(limit)}

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	storage.Offer(sub.ch, models.FeedSnapshot{Posts: head(s.sortedLocked(), sub.limit)})
	s.mu.Unlock()

	// Очистка подписки после завершения контекста
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		if _, ok := s.subscribers[sub]; ok {
			delete(s.subscribers, sub)
			close(sub.ch)
		}
		s.mu.Unlock()
	}()

	return sub.ch, nil
}

func (s *MemoryStorage) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	posts := s.sortedLocked()
	for sub := range s.subscribers {
		storage.Offer(sub.ch, models.FeedSnapshot{Posts: head(posts, sub.limit)})
	}
}

func head(posts []*models.Post, n int) []*models.Post {
	if len(posts) > n {
		posts = posts[:n]
	}
	out := make([]*models.Post, len(posts))
	copy(out, posts)
	return out
}

func (s *MemoryStorage) LookupAdmin(ctx context.Context, subjectID string) (*models.AdminRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.admins[subjectID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStorage) SetAdmin(ctx context.Context, subjectID string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.admins[subjectID] = &models.AdminRecord{SubjectID: subjectID, IsAdmin: isAdmin, UpdatedAt: s.now().UTC()}
	return nil
}

// Close drops all data and ends every subscription.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.posts = make(map[string]*models.Post)
	s.admins = make(map[string]*models.AdminRecord)
	for sub := range s.subscribers {
		close(sub.ch)
		delete(s.subscribers, sub)
	}
	return nil
}
