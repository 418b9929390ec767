package pipeline

import (
	"context"
	"time"

	"gifbot/internal/delivery"
	"gifbot/internal/transcoder"
	"gifbot/internal/workspace"
)

// Request is one conversion request built from an incoming message.
type Request struct {
	ID               string
	FileID           string
	FileName         string
	MIMEType         string
	DeclaredSize     int64
	DeclaredDuration time.Duration

	ChatID   int64
	UserID   int64
	Username string
}

// StatusRef identifies a posted status message. The zero value means none.
type StatusRef struct {
	MessageID int
}

// IsZero reports whether the ref points at no message.
func (r StatusRef) IsZero() bool {
	return r.MessageID == 0
}

// Conversation is the chat the request came from.
type Conversation interface {
	delivery.Transport

	// Fetch downloads the remote file to dst and returns the bytes written.
	Fetch(ctx context.Context, fileID, dst string) (int64, error)

	PostStatus(ctx context.Context, text string) (StatusRef, error)
	EditStatus(ctx context.Context, ref StatusRef, text string) error
	DeleteStatus(ctx context.Context, ref StatusRef) error
	Reply(ctx context.Context, text string) error
}

// Workspaces hands out per-request scratch directories.
type Workspaces interface {
	Acquire(inputExt string) (*workspace.Workspace, error)
	Release(ws *workspace.Workspace)
}

// Converter turns a downloaded clip into an animation.
type Converter interface {
	Convert(ctx context.Context, in transcoder.Input) (*transcoder.Result, error)
}

// Deliverer sends a finished animation back to the chat.
type Deliverer interface {
	Deliver(ctx context.Context, t delivery.Transport, a delivery.Artifact) (delivery.Report, error)
}

// Timings records how long each stage took.
type Timings struct {
	Download time.Duration
	Convert  time.Duration
	Deliver  time.Duration
	Total    time.Duration
}

// Outcome summarises a finished request.
type Outcome struct {
	RequestID string

	// Accepted is false when the file was not a video and no work was done.
	Accepted bool
	State    State
	Kind     ErrorKind
	Err      error
	// Message is the failure text shown to the user, empty on success.
	Message string

	Path        []State
	Timings     Timings
	OutputBytes int64
	Plan        transcoder.Plan
	Delivery    delivery.Report
}
