package models

import "time"

// Post is one entry of the lost-and-found feed.
type Post struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	ImageRef    *string   `json:"imageRef,omitempty"`
	AuthorID    string    `json:"authorId"`
	AuthorEmail string    `json:"authorEmail"`
	AuthorName  string    `json:"authorName"`
	CreatedAt   time.Time `json:"createdAt"`
	LikeCount   int       `json:"likes"`
	LikedBy     []string  `json:"likesBy"`
}

// Subject is the authenticated principal performing an action.
type Subject struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// AdminRecord is the directory document consulted for admin status.
type AdminRecord struct {
	SubjectID string    `json:"subjectId"`
	IsAdmin   bool      `json:"isAdmin"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PaginatedPosts struct {
	Posts      []*Post `json:"posts"`
	NextCursor *string `json:"nextCursor"`
}

// FeedSnapshot is one ordered view of the newest posts delivered by a
// subscription. Err is set when the subscription failed; Posts is then empty.
type FeedSnapshot struct {
	Posts []*Post
	Err   error
}

// PostView is a Post prepared for clients: the image reference is resolved
// to a download URL.
type PostView struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	ImageURL    *string   `json:"imageUrl"`
	AuthorID    string    `json:"authorId"`
	AuthorEmail string    `json:"authorEmail"`
	AuthorName  string    `json:"authorName"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedAgo  string    `json:"createdAgo"`
	LikeCount   int       `json:"likes"`
	LikedBy     []string  `json:"likesBy"`
}

type PostPage struct {
	Posts      []*PostView `json:"posts"`
	NextCursor *string     `json:"nextCursor"`
}

// FeedView is the client-facing form of a FeedSnapshot.
type FeedView struct {
	Success bool        `json:"success"`
	Posts   []*PostView `json:"posts"`
	Error   string      `json:"error,omitempty"`
}
