package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ButyrinIA/lostfound/internal/models"
	"github.com/ButyrinIA/lostfound/internal/storage"
)

type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore() *MemoryStorage {
	return NewWithClock((&tickClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}).Now)
}

func newPost(text string) *models.Post {
	return &models.Post{Text: text, AuthorID: "user1", AuthorEmail: "a@student.fatima.edu.ph", AuthorName: "a"}
}

func TestMemoryStorage(t *testing.T) {
	t.Run("CreatePost and GetPost", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		post := newPost("Найден зонт")
		id, err := store.CreatePost(ctx, post)
		require.NoError(t, err, "Ошибка при создании поста")
		assert.NotEmpty(t, id)
		assert.Equal(t, id, post.ID)
		assert.False(t, post.CreatedAt.IsZero())
		assert.Equal(t, []string{}, post.LikedBy)

		retrieved, err := store.GetPost(ctx, id)
		require.NoError(t, err, "Ошибка при получении поста")
		assert.Equal(t, post, retrieved, "Полученный пост не совпадает с созданным")
	})

	t.Run("GetPost Not Found", func(t *testing.T) {
		store := newStore()

		_, err := store.GetPost(context.Background(), "non-existent-id")
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
	})

	t.Run("DeletePost", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		id, err := store.CreatePost(ctx, newPost("keys"))
		require.NoError(t, err)

		require.NoError(t, store.DeletePost(ctx, id))
		_, err = store.GetPost(ctx, id)
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
		assert.ErrorIs(t, store.DeletePost(ctx, id), storage.ErrPostNotFound)
	})

	t.Run("ListPosts", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		id1, _ := store.CreatePost(ctx, newPost("Пост 1"))
		id2, _ := store.CreatePost(ctx, newPost("Пост 2"))
		id3, _ := store.CreatePost(ctx, newPost("Пост 3"))

		// Тестируем пагинацию
		result, err := store.ListPosts(ctx, 2, nil)
		require.NoError(t, err, "Ошибка при получении списка постов")
		require.Len(t, result.Posts, 2)
		assert.Equal(t, id3, result.Posts[0].ID, "Ожидался более новый пост")
		assert.Equal(t, id2, result.Posts[1].ID)
		require.NotNil(t, result.NextCursor, "Ожидался ненулевой курсор")
		assert.Equal(t, id2, *result.NextCursor)

		// Тестируем с курсором
		result, err = store.ListPosts(ctx, 2, result.NextCursor)
		require.NoError(t, err, "Ошибка при получении постов с курсором")
		require.Len(t, result.Posts, 1)
		assert.Equal(t, id1, result.Posts[0].ID, "Ожидался более старый пост")
		assert.Nil(t, result.NextCursor)

		unknown := "missing"
		result, err = store.ListPosts(ctx, 2, &unknown)
		require.NoError(t, err)
		assert.Empty(t, result.Posts)

		result, err = store.ListPosts(ctx, 0, nil)
		require.NoError(t, err)
		assert.Len(t, result.Posts, 3)
	})

	t.Run("SubscribePosts", func(t *testing.T) {
		store := newStore()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := store.SubscribePosts(ctx, 2)
		require.NoError(t, err)

		snap := <-ch
		assert.NoError(t, snap.Err)
		assert.Empty(t, snap.Posts)

		id1, _ := store.CreatePost(ctx, newPost("one"))
		snap = <-ch
		require.Len(t, snap.Posts, 1)
		assert.Equal(t, id1, snap.Posts[0].ID)

		store.CreatePost(ctx, newPost("two"))
		id3, _ := store.CreatePost(ctx, newPost("three"))
		// медленный читатель видит только последний снимок
		snap = <-ch
		require.Len(t, snap.Posts, 2)
		assert.Equal(t, id3, snap.Posts[0].ID)

		require.NoError(t, store.DeletePost(ctx, id3))
		snap = <-ch
		require.Len(t, snap.Posts, 2)
		assert.NotEqual(t, id3, snap.Posts[0].ID)

		cancel()
		select {
		case _, open := <-ch:
			assert.False(t, open, "Канал должен быть закрыт")
		case <-time.After(time.Second):
			t.Fatal("Таймаут ожидания закрытия подписки")
		}
	})

	t.Run("Admins", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		rec, err := store.LookupAdmin(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, rec)

		require.NoError(t, store.SetAdmin(ctx, "u1", true))
		rec, err = store.LookupAdmin(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.IsAdmin)
		assert.Equal(t, "u1", rec.SubjectID)

		require.NoError(t, store.SetAdmin(ctx, "u1", false))
		rec, _ = store.LookupAdmin(ctx, "u1")
		assert.False(t, rec.IsAdmin)
	})

	t.Run("Close", func(t *testing.T) {
		store := newStore()
		ctx := context.Background()

		id, err := store.CreatePost(ctx, newPost("keys"))
		require.NoError(t, err)

		ch, err := store.SubscribePosts(ctx, 10)
		require.NoError(t, err)
		<-ch

		assert.NoError(t, store.Close(), "Ошибка при закрытии хранилища")

		_, err = store.GetPost(ctx, id)
		assert.Error(t, err, "Ожидалась ошибка после очистки хранилища")
		_, open := <-ch
		assert.False(t, open)
	})
}
