package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/ButyrinIA/lostfound/internal/models"
	"github.com/ButyrinIA/lostfound/internal/storage"
)

func TestPostgresStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("интеграционный тест PostgreSQL")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	// Запуск тестового контейнера PostgreSQL
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:13",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "lostfound",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Не удалось запустить контейнер PostgreSQL")
	defer postgresC.Terminate(ctx)

	// Получение DSN
	host, err := postgresC.Host(ctx)
	require.NoError(t, err, "Не удалось получить хост контейнера")
	port, err := postgresC.MappedPort(ctx, "5432")
	require.NoError(t, err, "Не удалось получить порт контейнера")
	dsn := "postgres://user:password@" + host + ":" + port.Port() + "/lostfound?sslmode=disable"

	// Инициализация хранилища
	store, err := New(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err, "Не удалось инициализировать PostgresStorage")
	defer store.Close()

	newPost := func(text string) *models.Post {
		return &models.Post{Text: text, AuthorID: "user1", AuthorEmail: "a@student.fatima.edu.ph", AuthorName: "a"}
	}

	t.Run("CreatePost and GetPost", func(t *testing.T) {
		ref := "found-posts/user1/1_keys.jpg"
		post := newPost("Найдены ключи")
		post.ImageRef = &ref

		id, err := store.CreatePost(ctx, post)
		require.NoError(t, err, "Ошибка при создании поста")
		assert.NotEmpty(t, id)
		assert.False(t, post.CreatedAt.IsZero())

		retrieved, err := store.GetPost(ctx, id)
		require.NoError(t, err, "Ошибка при получении поста")
		assert.Equal(t, id, retrieved.ID)
		assert.Equal(t, post.Text, retrieved.Text)
		require.NotNil(t, retrieved.ImageRef)
		assert.Equal(t, ref, *retrieved.ImageRef)
		assert.Equal(t, []string{}, retrieved.LikedBy)
		assert.True(t, post.CreatedAt.Equal(retrieved.CreatedAt))
	})

	t.Run("CreatePost rejects empty post", func(t *testing.T) {
		_, err := store.CreatePost(ctx, newPost(""))
		assert.Error(t, err)
	})

	t.Run("GetPost Not Found", func(t *testing.T) {
		_, err := store.GetPost(ctx, "non-existent-id")
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
	})

	t.Run("ListPosts", func(t *testing.T) {
		var ids []string
		for _, text := range []string{"Пост 1", "Пост 2", "Пост 3"} {
			id, err := store.CreatePost(ctx, newPost(text))
			require.NoError(t, err)
			ids = append(ids, id)
		}

		page, err := store.ListPosts(ctx, 2, nil)
		require.NoError(t, err)
		require.Len(t, page.Posts, 2)
		assert.Equal(t, ids[2], page.Posts[0].ID, "Ожидался более новый пост")
		assert.Equal(t, ids[1], page.Posts[1].ID)
		require.NotNil(t, page.NextCursor)

		page, err = store.ListPosts(ctx, 1, page.NextCursor)
		require.NoError(t, err)
		require.Len(t, page.Posts, 1)
		assert.Equal(t, ids[0], page.Posts[0].ID, "Ожидался более старый пост")
	})

	t.Run("DeletePost", func(t *testing.T) {
		id, err := store.CreatePost(ctx, newPost("wallet"))
		require.NoError(t, err)

		require.NoError(t, store.DeletePost(ctx, id))
		_, err = store.GetPost(ctx, id)
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
		assert.ErrorIs(t, store.DeletePost(ctx, id), storage.ErrPostNotFound)
	})

	t.Run("SubscribePosts", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := store.SubscribePosts(subCtx, 5)
		require.NoError(t, err)

		select {
		case snap := <-ch:
			require.NoError(t, snap.Err)
		case <-time.After(5 * time.Second):
			t.Fatal("Таймаут ожидания первого снимка")
		}

		id, err := store.CreatePost(ctx, newPost("umbrella"))
		require.NoError(t, err)

		deadline := time.After(5 * time.Second)
		for {
			select {
			case snap := <-ch:
				require.NoError(t, snap.Err)
				if len(snap.Posts) > 0 && snap.Posts[0].ID == id {
					cancel()
					return
				}
			case <-deadline:
				t.Fatal("Таймаут ожидания уведомления")
			}
		}
	})

	t.Run("Admins", func(t *testing.T) {
		rec, err := store.LookupAdmin(ctx, "admin1")
		require.NoError(t, err)
		assert.Nil(t, rec)

		require.NoError(t, store.SetAdmin(ctx, "admin1", true))
		rec, err = store.LookupAdmin(ctx, "admin1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.True(t, rec.IsAdmin)

		require.NoError(t, store.SetAdmin(ctx, "admin1", false))
		rec, err = store.LookupAdmin(ctx, "admin1")
		require.NoError(t, err)
		assert.False(t, rec.IsAdmin)
	})
}
