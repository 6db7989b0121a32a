package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/identity"
	"github.com/ButyrinIA/lostfound/internal/models"
)

const writeWait = 10 * time.Second

// handleFeed streams feed snapshots over a WebSocket until the client goes
// away. Each message is a models.FeedView.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket_upgrade_failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Клиент ничего не шлёт; чтение нужно только чтобы заметить закрытие
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	feed, err := s.deps.Posts.Subscribe(ctx, limit)
	if err != nil {
		s.logger.Error("feed_subscribe_failed", zap.Error(err))
		conn.WriteJSON(models.FeedView{Success: false, Posts: []*models.PostView{}, Error: err.Error()})
		return
	}

	s.deps.Metrics.SubscriberOpened()
	defer s.deps.Metrics.SubscriberClosed()
	subjectID := identity.SubjectFrom(r.Context()).ID
	s.logger.Debug("feed_opened", zap.String("subject_id", subjectID))

	for view := range feed {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(view); err != nil {
			s.logger.Debug("feed_write_failed", zap.String("subject_id", subjectID), zap.Error(err))
			return
		}
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
