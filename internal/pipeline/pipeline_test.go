package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"gifbot/internal/delivery"
	"gifbot/internal/policy"
	"gifbot/internal/transcoder"
	"gifbot/internal/workspace"
)

const mb = 1024 * 1024

// =============================================================================
// Fakes
// =============================================================================

type fakeConversation struct {
	mu sync.Mutex

	payloadSize int64
	fetchDelay  time.Duration
	fetchErr    error
	fetchCalls  int
	// reportSize overrides the byte count Fetch returns.
	reportSize int64

	postErr error
	posts   []string
	edits   []string
	deletes int
	replies []string

	sendErrs map[string]error
	sends    []string
}

func (f *fakeConversation) Fetch(ctx context.Context, _ string, dst string) (int64, error) {
	f.mu.Lock()
	f.fetchCalls++
	f.mu.Unlock()

	if f.fetchDelay > 0 {
		select {
		case <-time.After(f.fetchDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.fetchErr != nil {
		return 0, f.fetchErr
	}
	if err := os.WriteFile(dst, make([]byte, f.payloadSize), 0o600); err != nil {
		return 0, err
	}
	if f.reportSize > 0 {
		return f.reportSize, nil
	}
	return f.payloadSize, nil
}

func (f *fakeConversation) PostStatus(_ context.Context, text string) (StatusRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return StatusRef{}, f.postErr
	}
	f.posts = append(f.posts, text)
	return StatusRef{MessageID: 42}, nil
}

func (f *fakeConversation) EditStatus(_ context.Context, _ StatusRef, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeConversation) DeleteStatus(context.Context, StatusRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeConversation) Reply(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeConversation) send(kind string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, kind)
	return f.sendErrs[kind]
}

func (f *fakeConversation) SendAnimation(context.Context, delivery.Upload) error {
	return f.send("animation")
}

func (f *fakeConversation) SendAnimationAs(context.Context, delivery.Upload) error {
	return f.send("animation_as")
}

func (f *fakeConversation) SendDocument(context.Context, delivery.Upload) error {
	return f.send("document")
}

// lastUserMessage returns the final text shown to the user.
func (f *fakeConversation) lastUserMessage() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) > 0 {
		return f.replies[len(f.replies)-1]
	}
	if len(f.edits) > 0 {
		return f.edits[len(f.edits)-1]
	}
	return ""
}

// fakeConverter writes a small GIF-like file and reports the configured size.
type fakeConverter struct {
	outputBytes int64
	source      transcoder.VideoInfo
	err         error
	block       bool
	panicMsg    string

	budget time.Duration
}

func (f *fakeConverter) Convert(ctx context.Context, in transcoder.Input) (*transcoder.Result, error) {
	if dl, ok := ctx.Deadline(); ok {
		f.budget = time.Until(dl)
	}
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("encode palette: %w", ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(in.OutputPath, []byte("GIF89a"), 0o600); err != nil {
		return nil, err
	}
	size := f.outputBytes
	if size == 0 {
		size = 6
	}
	return &transcoder.Result{OutputPath: in.OutputPath, OutputBytes: size, Source: f.source}, nil
}

type fakeInspector struct{}

func (fakeInspector) Dimensions(string) (int, int, error) { return 320, 240, nil }
func (fakeInspector) Thumbnail(string) ([]byte, error)    { return nil, errors.New("no thumbnail") }

// countingWorkspaces wraps a real manager and counts acquisitions.
type countingWorkspaces struct {
	*workspace.Manager
	acquired int
}

func (c *countingWorkspaces) Acquire(ext string) (*workspace.Workspace, error) {
	c.acquired++
	return c.Manager.Acquire(ext)
}

func newWorkspaces(t *testing.T) *countingWorkspaces {
	t.Helper()
	m, err := workspace.NewManager(filepath.Join(t.TempDir(), "scratch"))
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return &countingWorkspaces{Manager: m}
}

func assertScratchEmpty(t *testing.T, ws *countingWorkspaces) {
	t.Helper()
	entries, err := os.ReadDir(ws.Root())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected scratch root to be empty, found %d entries", len(entries))
	}
	if ws.Active() != 0 {
		t.Errorf("Expected Active()=0, got %d", ws.Active())
	}
}

func videoRequest(size int64) Request {
	return Request{
		ID:           "req-test-0001",
		FileID:       "file-1",
		FileName:     "clip.mp4",
		MIMEType:     "video/mp4",
		DeclaredSize: size,
		ChatID:       100,
		UserID:       7,
		Username:     "tester",
	}
}

func newOrchestrator(pol policy.Policy, ws Workspaces, conv Converter) *Orchestrator {
	return New(pol, ws, conv, delivery.New(delivery.DefaultMethods(fakeInspector{})...))
}

// =============================================================================
// Scenarios
// =============================================================================

func TestHandleHappyPath(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{payloadSize: 1024}
	converter := &fakeConverter{source: transcoder.VideoInfo{Duration: 3 * time.Second, Width: 320, Height: 240, FPS: 30}}
	o := newOrchestrator(policy.Default(), ws, converter)

	out := o.Handle(context.Background(), videoRequest(5*mb), conv)

	if !out.Accepted {
		t.Fatal("Expected request to be accepted")
	}
	if out.State != StateCompleted {
		t.Fatalf("Expected state %s, got %s (err: %v)", StateCompleted, out.State, out.Err)
	}
	if out.Kind != KindNone || out.Message != "" {
		t.Errorf("Expected no error kind or message, got %s %q", out.Kind, out.Message)
	}
	want := []State{StateReceived, StateValidating, StateDownloading, StateConverting, StateSizeChecking, StateDelivering, StateCompleted}
	if !slices.Equal(out.Path, want) {
		t.Errorf("Expected path %v, got %v", want, out.Path)
	}
	if out.Delivery.Method != delivery.MethodAnimation {
		t.Errorf("Expected delivery via %s, got %s", delivery.MethodAnimation, out.Delivery.Method)
	}
	if len(conv.posts) != 1 || conv.posts[0] != StatusProcessing {
		t.Errorf("Expected status %q to be posted, got %v", StatusProcessing, conv.posts)
	}
	if conv.deletes != 1 {
		t.Errorf("Expected status to be deleted once, got %d", conv.deletes)
	}
	if len(conv.replies) != 0 {
		t.Errorf("Expected no replies, got %v", conv.replies)
	}
	assertScratchEmpty(t, ws)
}

func TestHandleRejectsOversizedInputBeforeDownload(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{payloadSize: 1024}
	o := newOrchestrator(policy.Default(), ws, &fakeConverter{})

	out := o.Handle(context.Background(), videoRequest(25*mb), conv)

	if out.State != StateFailed || out.Kind != KindValidation {
		t.Fatalf("Expected Failed/validation, got %s/%s", out.State, out.Kind)
	}
	if conv.fetchCalls != 0 {
		t.Errorf("Expected no download, got %d fetch calls", conv.fetchCalls)
	}
	if ws.acquired != 0 {
		t.Errorf("Expected no workspace, got %d acquisitions", ws.acquired)
	}
	if !errors.Is(out.Err, ErrInputTooLarge) {
		t.Errorf("Expected ErrInputTooLarge, got %v", out.Err)
	}
	msg := conv.lastUserMessage()
	if !strings.Contains(msg, "25 MiB") || !strings.Contains(msg, "20 MiB") {
		t.Errorf("Expected message naming both sizes, got %q", msg)
	}
	if len(conv.posts) != 0 {
		t.Errorf("Expected no status message for a rejected request, got %v", conv.posts)
	}
	assertScratchEmpty(t, ws)
}

func TestHandleTrimsLongClip(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{payloadSize: 2048}

	runner := &recordingRunner{probe: `{"streams":[{"codec_type":"video","width":320,"height":240,"avg_frame_rate":"30/1"}],"format":{"duration":"15.0"}}`}
	tc := transcoder.New(policy.Default(), transcoder.Options{Runner: runner})
	o := newOrchestrator(policy.Default(), ws, tc)

	out := o.Handle(context.Background(), videoRequest(4*mb), conv)

	if out.State != StateCompleted {
		t.Fatalf("Expected %s, got %s (err: %v)", StateCompleted, out.State, out.Err)
	}
	if !out.Plan.Trimmed || out.Plan.Duration != 10*time.Second {
		t.Errorf("Expected trim to 10s, got %+v", out.Plan)
	}
	args := runner.lastFFmpegArgs()
	idx := slices.Index(args, "-t")
	if idx < 0 || args[idx+1] != "10" {
		t.Errorf("Expected -t 10 in encoder args, got %v", args)
	}
	assertScratchEmpty(t, ws)
}

func TestHandleDeliveryFallsBackToTertiary(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{payloadSize: 1024, sendErrs: map[string]error{
		"animation":    errors.New("bad request"),
		"animation_as": errors.New("bad request"),
	}}
	o := newOrchestrator(policy.Default(), ws, &fakeConverter{})

	out := o.Handle(context.Background(), videoRequest(mb), conv)

	if out.State != StateCompleted {
		t.Fatalf("Expected %s, got %s (err: %v)", StateCompleted, out.State, out.Err)
	}
	if n := len(out.Delivery.Attempts); n != 3 {
		t.Errorf("Expected 3 recorded attempts, got %d", n)
	}
	if out.Delivery.Method != delivery.MethodDocument {
		t.Errorf("Expected %s to win, got %s", delivery.MethodDocument, out.Delivery.Method)
	}
	want := []string{"animation", "animation_as", "document"}
	if !slices.Equal(conv.sends, want) {
		t.Errorf("Expected sends %v, got %v", want, conv.sends)
	}
	assertScratchEmpty(t, ws)
}

func TestHandleConversionTimeout(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{payloadSize: 1024}
	pol := policy.Default()
	pol.OperationTimeout = 50 * time.Millisecond
	o := newOrchestrator(pol, ws, &fakeConverter{block: true})

	out := o.Handle(context.Background(), videoRequest(mb), conv)

	if out.State != StateFailed || out.Kind != KindTimeout {
		t.Fatalf("Expected Failed/timeout, got %s/%s (err: %v)", out.State, out.Kind, out.Err)
	}
	var se *StageError
	if !errors.As(out.Err, &se) || se.Stage != StateConverting {
		t.Errorf("Expected StageError at %s, got %v", StateConverting, out.Err)
	}
	if got := conv.lastUserMessage(); got != TimeoutMessage {
		t.Errorf("Expected %q, got %q", TimeoutMessage, got)
	}
	if len(conv.replies) != 0 {
		t.Errorf("Expected the status message to be edited rather than a reply, got %v", conv.replies)
	}
	assertScratchEmpty(t, ws)
}

func TestHandleIndependentStageBudgets(t *testing.T) {
	ws := newWorkspaces(t)
	pol := policy.Default()
	pol.OperationTimeout = 300 * time.Millisecond
	conv := &fakeConversation{payloadSize: 1024, fetchDelay: 200 * time.Millisecond}
	converter := &fakeConverter{}
	o := newOrchestrator(pol, ws, converter)

	out := o.Handle(context.Background(), videoRequest(mb), conv)

	if out.State != StateCompleted {
		t.Fatalf("Expected %s, got %s (err: %v)", StateCompleted, out.State, out.Err)
	}
	// A shared budget would leave under 100ms for conversion.
	if converter.budget < 200*time.Millisecond {
		t.Errorf("Expected a fresh conversion budget, got %v", converter.budget)
	}
}

func TestHandleDownloadTimeout(t *testing.T) {
	ws := newWorkspaces(t)
	pol := policy.Default()
	pol.OperationTimeout = 30 * time.Millisecond
	conv := &fakeConversation{payloadSize: 1024, fetchDelay: time.Second}
	o := newOrchestrator(pol, ws, &fakeConverter{})

	out := o.Handle(context.Background(), videoRequest(mb), conv)

	if out.Kind != KindTimeout {
		t.Fatalf("Expected timeout, got %s (err: %v)", out.Kind, out.Err)
	}
	assertScratchEmpty(t, ws)
}

func TestHandleFailures(t *testing.T) {
	tests := []struct {
		name      string
		conv      *fakeConversation
		converter *fakeConverter
		wantKind  ErrorKind
		wantMsg   string
		wantState State
	}{
		{
			name:      "encode failure",
			conv:      &fakeConversation{payloadSize: 10},
			converter: &fakeConverter{err: fmt.Errorf("%w: bad data", transcoder.ErrEncodeFailed)},
			wantKind:  KindEncodeFailed,
			wantMsg:   EncodeFailedMessage,
			wantState: StateConverting,
		},
		{
			name:      "output too large",
			conv:      &fakeConversation{payloadSize: 10},
			converter: &fakeConverter{outputBytes: 60 * mb},
			wantKind:  KindValidation,
			wantMsg:   "shorter clip",
			wantState: StateSizeChecking,
		},
		{
			name: "delivery exhausted",
			conv: &fakeConversation{payloadSize: 10, sendErrs: map[string]error{
				"animation": errors.New("x"), "animation_as": errors.New("x"), "document": errors.New("x"),
			}},
			converter: &fakeConverter{},
			wantKind:  KindDeliveryExhausted,
			wantMsg:   DeliveryFailedMessage,
			wantState: StateDelivering,
		},
		{
			name: "delivery too large",
			conv: &fakeConversation{payloadSize: 10, sendErrs: map[string]error{
				"animation": fmt.Errorf("%w: 413", delivery.ErrTooLarge),
			}},
			converter: &fakeConverter{},
			wantKind:  KindDeliveryExhausted,
			wantMsg:   DeliveryTooLargeMessage,
			wantState: StateDelivering,
		},
		{
			name:      "download failure",
			conv:      &fakeConversation{fetchErr: errors.New("connection reset")},
			converter: &fakeConverter{},
			wantKind:  KindUnexpected,
			wantMsg:   UnexpectedMessage,
			wantState: StateDownloading,
		},
		{
			name:      "downloaded size mismatch",
			conv:      &fakeConversation{payloadSize: 10, reportSize: 30 * mb},
			converter: &fakeConverter{},
			wantKind:  KindUnexpected,
			wantMsg:   UnexpectedMessage,
			wantState: StateDownloading,
		},
		{
			name:      "panic in converter",
			conv:      &fakeConversation{payloadSize: 10},
			converter: &fakeConverter{panicMsg: "boom"},
			wantKind:  KindUnexpected,
			wantMsg:   UnexpectedMessage,
			wantState: StateConverting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspaces(t)
			o := newOrchestrator(policy.Default(), ws, tt.converter)

			out := o.Handle(context.Background(), videoRequest(mb), tt.conv)

			if out.State != StateFailed {
				t.Fatalf("Expected %s, got %s", StateFailed, out.State)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s (err: %v)", tt.wantKind, out.Kind, out.Err)
			}
			if !strings.Contains(out.Message, tt.wantMsg) {
				t.Errorf("Expected message containing %q, got %q", tt.wantMsg, out.Message)
			}
			if got := tt.conv.lastUserMessage(); got != out.Message {
				t.Errorf("Expected user to see %q, got %q", out.Message, got)
			}
			if n := len(out.Path); n < 2 || out.Path[n-2] != tt.wantState {
				t.Errorf("Expected failure from %s, got path %v", tt.wantState, out.Path)
			}
			if tt.conv.deletes != 0 {
				t.Error("Status message should not be deleted on failure")
			}
			assertScratchEmpty(t, ws)
		})
	}
}

func TestHandleNonVideo(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{}
	o := newOrchestrator(policy.Default(), ws, &fakeConverter{})

	req := videoRequest(mb)
	req.MIMEType = "application/pdf"
	req.FileName = "report.pdf"
	out := o.Handle(context.Background(), req, conv)

	if out.Accepted {
		t.Error("Expected non-video request to be declined")
	}
	if out.State != StateReceived {
		t.Errorf("Expected state to stay %s, got %s", StateReceived, out.State)
	}
	if len(conv.replies) != 1 || conv.replies[0] != NotVideoMessage {
		t.Errorf("Expected instruction reply, got %v", conv.replies)
	}
	if ws.acquired != 0 || conv.fetchCalls != 0 {
		t.Error("Expected no workspace and no download for a non-video file")
	}
}

func TestHandleStatusPostFailureContinues(t *testing.T) {
	ws := newWorkspaces(t)
	conv := &fakeConversation{payloadSize: 10, postErr: errors.New("flood wait")}
	o := newOrchestrator(policy.Default(), ws, &fakeConverter{err: transcoder.ErrEncodeFailed})

	out := o.Handle(context.Background(), videoRequest(mb), conv)

	if out.Kind != KindEncodeFailed {
		t.Fatalf("Expected encode failure, got %s", out.Kind)
	}
	if len(conv.edits) != 0 {
		t.Errorf("Expected no edits without a status message, got %v", conv.edits)
	}
	if len(conv.replies) != 1 || conv.replies[0] != EncodeFailedMessage {
		t.Errorf("Expected error to be sent as a reply, got %v", conv.replies)
	}
}

func TestHandleAssignsRequestID(t *testing.T) {
	o := newOrchestrator(policy.Default(), newWorkspaces(t), &fakeConverter{})
	req := videoRequest(mb)
	req.ID = ""

	out := o.Handle(context.Background(), req, &fakeConversation{payloadSize: 10})
	if out.RequestID == "" {
		t.Error("Expected a generated request ID")
	}
}

func TestHandleProgressDisabled(t *testing.T) {
	conv := &fakeConversation{payloadSize: 10}
	o := New(policy.Default(), newWorkspaces(t), &fakeConverter{},
		delivery.New(delivery.DefaultMethods(fakeInspector{})...), WithProgress(false), WithCaption("done"))

	out := o.Handle(context.Background(), videoRequest(mb), conv)
	if out.State != StateCompleted {
		t.Fatalf("Expected %s, got %s", StateCompleted, out.State)
	}
	if len(conv.edits) != 0 {
		t.Errorf("Expected no progress edits, got %v", conv.edits)
	}
}

// =============================================================================
// Encoder runner used with the real transcoder
// =============================================================================

type recordingRunner struct {
	mu    sync.Mutex
	probe string
	args  [][]string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (transcoder.CommandResult, error) {
	if strings.Contains(name, "ffprobe") {
		return transcoder.CommandResult{Stdout: r.probe}, nil
	}
	r.mu.Lock()
	r.args = append(r.args, args)
	r.mu.Unlock()
	if err := os.WriteFile(args[len(args)-1], []byte("GIF89a"), 0o600); err != nil {
		return transcoder.CommandResult{ExitCode: 1}, err
	}
	return transcoder.CommandResult{}, nil
}

func (r *recordingRunner) lastFFmpegArgs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.args) == 0 {
		return nil
	}
	return r.args[len(r.args)-1]
}
