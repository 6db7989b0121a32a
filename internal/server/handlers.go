package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/blob"
	"github.com/ButyrinIA/lostfound/internal/identity"
	"github.com/ButyrinIA/lostfound/internal/models"
	"github.com/ButyrinIA/lostfound/internal/post"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func statusFor(reason post.Reason) int {
	switch reason {
	case post.ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case post.ReasonNotAuthorized:
		return http.StatusForbidden
	case post.ReasonProfaneContent, post.ReasonEmptyPost, post.ReasonInvalidImageType:
		return http.StatusUnprocessableEntity
	case post.ReasonImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case post.ReasonNotFound:
		return http.StatusNotFound
	case post.ReasonUploadFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeOutcome(w http.ResponseWriter, okStatus int, out post.Outcome) {
	if out.Success {
		writeJSON(w, okStatus, out)
		return
	}
	writeJSON(w, statusFor(out.Reason), out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	opener, ok := s.deps.Blobs.(blob.Opener)
	if !ok {
		http.NotFound(w, r)
		return
	}
	rc, contentType, err := opener.Open(r.Context(), blob.Ref(mux.Vars(r)["path"]))
	if errors.Is(err, blob.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("blob_open_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read image")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	io.Copy(w, rc)
}

type meResponse struct {
	Subject *models.Subject `json:"subject"`
	IsAdmin bool            `json:"isAdmin"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	subject := identity.SubjectFrom(r.Context())
	writeJSON(w, http.StatusOK, meResponse{
		Subject: subject,
		IsAdmin: s.deps.Cache.IsAdmin(r.Context(), subject.ID),
	})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	page, err := s.deps.Posts.ListPosts(r.Context(), limit, cursor)
	if err != nil {
		s.logger.Error("list_posts_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load posts")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	// Leave room above the image limit so oversize images reach the
	// pipeline and get a proper rejection.
	r.Body = http.MaxBytesReader(w, r.Body, 2*int64(s.cfg.Posts.MaxImageSize)+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := post.CreatePostRequest{Text: r.FormValue("text")}
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image")
			return
		}
		if len(data) == 0 {
			// файл без содержимого считается отсутствующим
			break
		}
		contentType := header.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		req.Image = &post.Upload{Name: header.Filename, ContentType: contentType, Data: data}
		req.OnProgress = func(p float64) {
			s.logger.Debug("upload_progress", zap.String("name", header.Filename), zap.Float64("percent", p))
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, http.StatusBadRequest, "invalid image field")
		return
	}

	id, err := s.deps.Posts.CreatePost(r.Context(), req)
	writeOutcome(w, http.StatusCreated, post.OutcomeOf(id, err))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := s.deps.Posts.DeletePost(r.Context(), id)
	writeOutcome(w, http.StatusOK, post.OutcomeOf(id, err))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	subject := identity.SubjectFrom(r.Context())
	s.deps.Cache.Invalidate(subject.ID)
	w.WriteHeader(http.StatusNoContent)
}

type setAdminRequest struct {
	IsAdmin *bool `json:"isAdmin"`
}

// requireAdmin writes the error response and returns nil unless the caller
// is a verified admin.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request, denied string) *models.Subject {
	caller := identity.SubjectFrom(r.Context())
	ok, err := s.deps.Cache.Verify(r.Context(), caller.ID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "could not verify admin permissions")
		return nil
	}
	if !ok {
		writeError(w, http.StatusForbidden, denied)
		return nil
	}
	return caller
}

func (s *Server) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	caller := s.requireAdmin(w, r, "only admins can change admin status")
	if caller == nil {
		return
	}

	var body setAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IsAdmin == nil {
		writeError(w, http.StatusBadRequest, `body must be {"isAdmin": true|false}`)
		return
	}

	target := mux.Vars(r)["id"]
	if err := s.deps.Admins.SetAdmin(r.Context(), target, *body.IsAdmin); err != nil {
		s.logger.Error("set_admin_failed", zap.String("subject_id", target), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update admin status")
		return
	}
	s.deps.Cache.Invalidate(target)
	s.logger.Info("admin_updated", zap.String("subject_id", target), zap.Bool("is_admin", *body.IsAdmin), zap.String("by", caller.ID))

	writeJSON(w, http.StatusOK, models.AdminRecord{SubjectID: target, IsAdmin: *body.IsAdmin})
}

// handleFlushAdminCache drops every cached admin answer. Operators call it
// after changing the directory out of band, e.g. with "lostfound admins".
func (s *Server) handleFlushAdminCache(w http.ResponseWriter, r *http.Request) {
	caller := s.requireAdmin(w, r, "only admins can flush the admin cache")
	if caller == nil {
		return
	}
	dropped := s.deps.Cache.Len()
	s.deps.Cache.InvalidateAll()
	s.logger.Info("admin_cache_flushed", zap.Int("entries", dropped), zap.String("by", caller.ID))
	w.WriteHeader(http.StatusNoContent)
}
