package authz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ButyrinIA/lostfound/internal/models"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) LookupAdmin(ctx context.Context, subjectID string) (*models.AdminRecord, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).(*models.AdminRecord), args.Error(1)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveAdminLookup(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[result]++
}

func newTestCache(t *testing.T, dir Directory, clock *fakeClock, obs Observer) *Cache {
	t.Helper()
	c, err := NewCache(dir, Options{Now: clock.Now, Observer: obs}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestIsAdmin_EmptySubjectSkipsLookup(t *testing.T) {
	dir := &mockDirectory{}
	c := newTestCache(t, dir, &fakeClock{t: time.Now()}, nil)

	assert.False(t, c.IsAdmin(context.Background(), ""))
	dir.AssertNotCalled(t, "LookupAdmin", mock.Anything, mock.Anything)
}

func TestIsAdmin_CachedWithinTTL(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LookupAdmin", mock.Anything, "u1").Return(&models.AdminRecord{SubjectID: "u1", IsAdmin: true}, nil).Once()
	clock := &fakeClock{t: time.Now()}
	obs := &countingObserver{}
	c := newTestCache(t, dir, clock, obs)

	assert.True(t, c.IsAdmin(context.Background(), "u1"))
	clock.Advance(4*time.Minute + 59*time.Second)
	assert.True(t, c.IsAdmin(context.Background(), "u1"))

	dir.AssertNumberOfCalls(t, "LookupAdmin", 1)
	assert.Equal(t, 1, obs.counts["miss"])
	assert.Equal(t, 1, obs.counts["hit"])
}

func TestIsAdmin_RefetchesAfterTTL(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LookupAdmin", mock.Anything, "u1").Return(&models.AdminRecord{SubjectID: "u1", IsAdmin: true}, nil).Once()
	dir.On("LookupAdmin", mock.Anything, "u1").Return(&models.AdminRecord{SubjectID: "u1", IsAdmin: false}, nil).Once()
	clock := &fakeClock{t: time.Now()}
	c := newTestCache(t, dir, clock, nil)

	assert.True(t, c.IsAdmin(context.Background(), "u1"))
	clock.Advance(5 * time.Minute)
	assert.False(t, c.IsAdmin(context.Background(), "u1"))

	dir.AssertNumberOfCalls(t, "LookupAdmin", 2)
}

func TestIsAdmin_MissingRecordIsNotAdmin(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LookupAdmin", mock.Anything, "u2").Return((*models.AdminRecord)(nil), nil).Once()
	c := newTestCache(t, dir, &fakeClock{t: time.Now()}, nil)

	assert.False(t, c.IsAdmin(context.Background(), "u2"))
	assert.False(t, c.IsAdmin(context.Background(), "u2"))
	dir.AssertNumberOfCalls(t, "LookupAdmin", 1)
}

func TestVerify_FailureIsDeniedAndNotCached(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LookupAdmin", mock.Anything, "u1").Return((*models.AdminRecord)(nil), errors.New("connection refused")).Once()
	dir.On("LookupAdmin", mock.Anything, "u1").Return(&models.AdminRecord{SubjectID: "u1", IsAdmin: true}, nil).Once()
	obs := &countingObserver{}
	c := newTestCache(t, dir, &fakeClock{t: time.Now()}, obs)

	ok, err := c.Verify(context.Background(), "u1")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrAuthorityUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, c.Len())

	ok, err = c.Verify(context.Background(), "u1")
	assert.NoError(t, err)
	assert.True(t, ok)
	dir.AssertNumberOfCalls(t, "LookupAdmin", 2)
	assert.Equal(t, 1, obs.counts["error"])
}

func TestInvalidate(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LookupAdmin", mock.Anything, mock.Anything).Return(&models.AdminRecord{IsAdmin: true}, nil)
	c := newTestCache(t, dir, &fakeClock{t: time.Now()}, nil)
	ctx := context.Background()

	c.IsAdmin(ctx, "u1")
	c.IsAdmin(ctx, "u2")
	assert.Equal(t, 2, c.Len())

	c.Invalidate("u1")
	assert.Equal(t, 1, c.Len())
	c.IsAdmin(ctx, "u1")
	c.IsAdmin(ctx, "u2")
	dir.AssertNumberOfCalls(t, "LookupAdmin", 3)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
	c.IsAdmin(ctx, "u2")
	dir.AssertNumberOfCalls(t, "LookupAdmin", 4)
}

func TestIsAdmin_ConcurrentSubjects(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LookupAdmin", mock.Anything, "admin").Return(&models.AdminRecord{IsAdmin: true}, nil)
	dir.On("LookupAdmin", mock.Anything, "student").Return(&models.AdminRecord{IsAdmin: false}, nil)
	c := newTestCache(t, dir, &fakeClock{t: time.Now()}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.True(t, c.IsAdmin(context.Background(), "admin"))
		}()
		go func() {
			defer wg.Done()
			assert.False(t, c.IsAdmin(context.Background(), "student"))
		}()
	}
	wg.Wait()
}

func TestNewCache_Defaults(t *testing.T) {
	c, err := NewCache(&mockDirectory{}, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, c.ttl)
}
