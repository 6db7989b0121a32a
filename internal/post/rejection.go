package post

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonNotAuthenticated Reason = "not_authenticated"
	ReasonNotAuthorized    Reason = "not_authorized"
	ReasonProfaneContent   Reason = "profane_content"
	ReasonEmptyPost        Reason = "empty_post"
	ReasonInvalidImageType Reason = "invalid_image_type"
	ReasonImageTooLarge    Reason = "image_too_large"
	ReasonUploadFailed     Reason = "upload_failed"
	ReasonPersistFailed    Reason = "persist_failed"
	ReasonNotFound         Reason = "not_found"
	ReasonDeleteFailed     Reason = "delete_failed"
)

// Rejection is returned when a submission or deletion stops at one of the
// pipeline checks. Err, when set, is the underlying cause.
type Rejection struct {
	Reason  Reason
	Message string
	Err     error
}

func (r *Rejection) Error() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: %s: %v", r.Reason, r.Message, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Message)
}

func (r *Rejection) Unwrap() error { return r.Err }

func reject(reason Reason, message string, cause error) *Rejection {
	return &Rejection{Reason: reason, Message: message, Err: cause}
}

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}

// Outcome is the structured result reported to clients.
type Outcome struct {
	Success bool   `json:"success"`
	PostID  string `json:"postId,omitempty"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r *Rejection) Outcome() Outcome {
	return Outcome{Success: false, Reason: r.Reason, Message: r.Message}
}

// OutcomeOf folds the result of CreatePost or DeletePost into an Outcome.
// Errors that are not rejections are reported as persist failures.
func OutcomeOf(id string, err error) Outcome {
	if err == nil {
		return Outcome{Success: true, PostID: id}
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r.Outcome()
	}
	return Outcome{Success: false, Reason: ReasonPersistFailed, Message: err.Error()}
}
