package post

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/graph-gophers/dataloader/v7"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/blob"
	"github.com/ButyrinIA/lostfound/internal/models"
)

// newURLLoader batches download URL lookups for one page or snapshot.
// Presigned URLs expire, so loaders are never shared between requests.
func (s *Service) newURLLoader() *dataloader.Loader[blob.Ref, string] {
	return dataloader.NewBatchedLoader(
		func(ctx context.Context, refs []blob.Ref) []*dataloader.Result[string] {
			results := make([]*dataloader.Result[string], len(refs))
			for i, ref := range refs {
				url, err := s.Blobs.DownloadURL(ctx, ref)
				results[i] = &dataloader.Result[string]{Data: url, Error: err}
			}
			return results
		},
	)
}

func (s *Service) views(ctx context.Context, posts []*models.Post) []*models.PostView {
	views := make([]*models.PostView, len(posts))
	var refs []blob.Ref
	var withImage []int
	now := s.Now()
	for i, p := range posts {
		views[i] = &models.PostView{
			ID:          p.ID,
			Text:        p.Text,
			AuthorID:    p.AuthorID,
			AuthorEmail: p.AuthorEmail,
			AuthorName:  p.AuthorName,
			CreatedAt:   p.CreatedAt,
			CreatedAgo:  humanize.RelTime(p.CreatedAt, now, "ago", "from now"),
			LikeCount:   p.LikeCount,
			LikedBy:     p.LikedBy,
		}
		if views[i].LikedBy == nil {
			views[i].LikedBy = []string{}
		}
		if p.ImageRef != nil {
			refs = append(refs, blob.Ref(*p.ImageRef))
			withImage = append(withImage, i)
		}
	}
	if len(refs) == 0 || s.Blobs == nil {
		return views
	}

	urls, errs := s.newURLLoader().LoadMany(ctx, refs)()
	for j, i := range withImage {
		if errs != nil && errs[j] != nil {
			s.Logger.Warn("image_url_failed", zap.String("post_id", posts[i].ID), zap.Error(errs[j]))
			continue
		}
		url := urls[j]
		views[i].ImageURL = &url
	}
	return views
}
