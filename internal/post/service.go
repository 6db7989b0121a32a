// Package post is the admission pipeline for lost-and-found posts: it decides
// whether a submission is stored and, if so, stores its image and document.
package post

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/blob"
	"github.com/ButyrinIA/lostfound/internal/identity"
	"github.com/ButyrinIA/lostfound/internal/imaging"
	"github.com/ButyrinIA/lostfound/internal/models"
	"github.com/ButyrinIA/lostfound/internal/profanity"
	"github.com/ButyrinIA/lostfound/internal/storage"
)

const (
	DefaultMaxImageSize = 10 << 20
	DefaultPrefix       = "found-posts"
)

// Authorizer is satisfied by *authz.Cache.
type Authorizer interface {
	Verify(ctx context.Context, subjectID string) (bool, error)
}

// Classifier is satisfied by *profanity.Filter.
type Classifier interface {
	Classify(text string) profanity.Verdict
	Message() string
}

// Normalizer is satisfied by *imaging.Normalizer.
type Normalizer interface {
	Normalize(ctx context.Context, in imaging.Image) imaging.Image
}

// Recorder is satisfied by *metrics.Metrics.
type Recorder interface {
	ObserveSubmission(outcome string)
	ObserveDeletion(outcome string)
	ObserveNormalize(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(string)       {}
func (nopRecorder) ObserveDeletion(string)         {}
func (nopRecorder) ObserveNormalize(time.Duration) {}

// Upload is an image attached to a submission, fully read into memory.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

type CreatePostRequest struct {
	Text string
	// Image is optional. An upload with no bytes counts as no image.
	Image *Upload
	// OnProgress, if set, receives upload progress for the image.
	OnProgress blob.ProgressFunc
}

type Deps struct {
	Identity   identity.Provider
	Authz      Authorizer
	Classifier Classifier
	Normalizer Normalizer
	Blobs      blob.Store
	Store      storage.Storage
	Metrics    Recorder
	Logger     *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Options struct {
	MaxImageSize int64
	Prefix       string
	FeedLimit    int
}

type Service struct {
	Deps
	opts Options
}

func NewService(d Deps, opts Options) *Service {
	if d.Identity == nil {
		d.Identity = identity.ContextProvider{}
	}
	if d.Classifier == nil {
		d.Classifier = profanity.Default()
	}
	if d.Metrics == nil {
		d.Metrics = nopRecorder{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if opts.MaxImageSize <= 0 {
		opts.MaxImageSize = DefaultMaxImageSize
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	opts.FeedLimit = storage.ClampLimit(opts.FeedLimit)
	return &Service{Deps: d, opts: opts}
}

// CreatePost runs the checks in order and stops at the first failure, which
// is returned as a *Rejection. Nothing is retried.
func (s *Service) CreatePost(ctx context.Context, req CreatePostRequest) (id string, err error) {
	defer func() {
		outcome := "accepted"
		if r, ok := ReasonOf(err); ok {
			outcome = string(r)
		}
		s.Metrics.ObserveSubmission(outcome)
	}()

	subject := s.Identity.CurrentSubject(ctx)
	if subject == nil {
		return "", reject(ReasonNotAuthenticated, "You must be signed in to post.", nil)
	}

	isAdmin, err := s.Authz.Verify(ctx, subject.ID)
	if err != nil {
		return "", reject(ReasonNotAuthorized, "Could not verify admin permissions. Please try again.", err)
	}
	if !isAdmin {
		return "", reject(ReasonNotAuthorized, "Only admins can create posts.", nil)
	}

	if v := s.Classifier.Classify(req.Text); v.Blocked {
		s.Logger.Info("post_rejected_profanity", zap.String("subject_id", subject.ID), zap.String("term", v.Term))
		return "", reject(ReasonProfaneContent, s.Classifier.Message(), nil)
	}

	text := strings.TrimSpace(req.Text)
	upload := req.Image
	if upload != nil && len(upload.Data) == 0 {
		upload = nil
	}
	if text == "" && upload == nil {
		return "", reject(ReasonEmptyPost, "Post must have text or an image.", nil)
	}

	var imageRef *string
	if upload != nil {
		if err := s.validateImage(upload); err != nil {
			return "", err
		}

		img := s.normalize(ctx, upload)
		path := blob.ObjectPath(s.opts.Prefix, subject.ID, s.Now(), upload.Name)
		ref, err := s.Blobs.Put(ctx, path, bytes.NewReader(img.Data), img.Size(), img.ContentType, req.OnProgress)
		if err != nil {
			s.Logger.Error("image_upload_failed", zap.String("subject_id", subject.ID), zap.String("path", path), zap.Error(err))
			return "", reject(ReasonUploadFailed, err.Error(), err)
		}
		r := string(ref)
		imageRef = &r
	}

	p := &models.Post{
		Text:        text,
		ImageRef:    imageRef,
		AuthorID:    subject.ID,
		AuthorEmail: subject.Email,
		AuthorName:  identity.AuthorName(subject),
		LikedBy:     []string{},
	}
	id, err = s.Store.CreatePost(ctx, p)
	if err != nil {
		s.Logger.Error("post_persist_failed", zap.String("subject_id", subject.ID), zap.Error(err))
		if imageRef != nil {
			s.discardBlob(ctx, blob.Ref(*imageRef))
		}
		return "", reject(ReasonPersistFailed, err.Error(), err)
	}

	s.Logger.Info("post_created", zap.String("post_id", id), zap.String("author_id", subject.ID), zap.Bool("has_image", imageRef != nil))
	return id, nil
}

func (s *Service) validateImage(u *Upload) error {
	if !strings.HasPrefix(u.ContentType, "image/") {
		return reject(ReasonInvalidImageType, "Only image files are allowed.", nil)
	}
	if size := int64(len(u.Data)); size > s.opts.MaxImageSize {
		return reject(ReasonImageTooLarge,
			fmt.Sprintf("Image is %s; the limit is %s.", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(s.opts.MaxImageSize))),
			nil)
	}
	return nil
}

func (s *Service) normalize(ctx context.Context, u *Upload) imaging.Image {
	img := imaging.Image{Name: u.Name, ContentType: u.ContentType, Data: u.Data}
	if s.Normalizer == nil {
		return img
	}
	start := time.Now()
	out := s.Normalizer.Normalize(ctx, img)
	s.Metrics.ObserveNormalize(time.Since(start))
	if len(out.Data) == 0 {
		return img
	}
	return out
}

// discardBlob removes an image whose post was never stored. Failures are only
// logged.
func (s *Service) discardBlob(ctx context.Context, ref blob.Ref) {
	if err := s.Blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
		s.Logger.Warn("orphan_blob_delete_failed", zap.String("ref", string(ref)), zap.Error(err))
	}
}

// DeletePost removes a post and then, best effort, its image. Only admins may
// delete.
func (s *Service) DeletePost(ctx context.Context, id string) (err error) {
	defer func() {
		outcome := "deleted"
		if r, ok := ReasonOf(err); ok {
			outcome = string(r)
		}
		s.Metrics.ObserveDeletion(outcome)
	}()

	subject := s.Identity.CurrentSubject(ctx)
	if subject == nil {
		return reject(ReasonNotAuthenticated, "You must be signed in to delete posts.", nil)
	}
	isAdmin, err := s.Authz.Verify(ctx, subject.ID)
	if err != nil {
		return reject(ReasonNotAuthorized, "Could not verify admin permissions. Please try again.", err)
	}
	if !isAdmin {
		return reject(ReasonNotAuthorized, "Only admins can delete posts.", nil)
	}

	p, err := s.Store.GetPost(ctx, id)
	if err != nil {
		return s.deleteError(err)
	}
	if err := s.Store.DeletePost(ctx, id); err != nil {
		return s.deleteError(err)
	}
	if p.ImageRef != nil {
		s.discardBlob(ctx, blob.Ref(*p.ImageRef))
	}

	s.Logger.Info("post_deleted", zap.String("post_id", id), zap.String("subject_id", subject.ID))
	return nil
}

func (s *Service) deleteError(err error) error {
	if errors.Is(err, storage.ErrPostNotFound) {
		return reject(ReasonNotFound, "Post not found.", err)
	}
	return reject(ReasonDeleteFailed, err.Error(), err)
}

// ListPosts returns one feed page with image URLs resolved.
func (s *Service) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PostPage, error) {
	if limit <= 0 {
		limit = s.opts.FeedLimit
	}
	page, err := s.Store.ListPosts(ctx, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return &models.PostPage{
		Posts:      s.views(ctx, page.Posts),
		NextCursor: page.NextCursor,
	}, nil
}

// Subscribe streams feed snapshots as views. The returned channel is closed
// when ctx is done or the underlying subscription ends.
func (s *Service) Subscribe(ctx context.Context, limit int) (<-chan models.FeedView, error) {
	if limit <= 0 {
		limit = s.opts.FeedLimit
	}
	snaps, err := s.Store.SubscribePosts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to posts: %w", err)
	}

	out := make(chan models.FeedView, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			view := models.FeedView{Success: true}
			if snap.Err != nil {
				view = models.FeedView{Success: false, Posts: []*models.PostView{}, Error: snap.Err.Error()}
			} else {
				view.Posts = s.views(ctx, snap.Posts)
			}
			select {
			case out <- view:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
