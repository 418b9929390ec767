package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"gifbot/internal/delivery"
	"gifbot/internal/logging"
	"gifbot/internal/mediatypes"
	"gifbot/internal/metrics"
	"gifbot/internal/policy"
	"gifbot/internal/transcoder"
	"gifbot/internal/workspace"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Status texts shown while a request is in progress.
const (
	StatusProcessing = "Processing your video to GIF..."
	StatusConverting = "Converting to GIF..."
	StatusUploading  = "Uploading your GIF..."

	// DefaultCaption accompanies the delivered animation.
	DefaultCaption = "Here's your GIF!"

	reportTimeout = 15 * time.Second
)

// Orchestrator wires the workspace, converter and deliverer together.
type Orchestrator struct {
	pol        policy.Policy
	workspaces Workspaces
	converter  Converter
	deliverer  Deliverer
	caption    string
	progress   bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCaption sets the caption sent with the animation.
func WithCaption(caption string) Option {
	return func(o *Orchestrator) {
		o.caption = caption
	}
}

// WithProgress toggles the per-stage status edits.
func WithProgress(enabled bool) Option {
	return func(o *Orchestrator) {
		o.progress = enabled
	}
}

// New creates an Orchestrator bound to an immutable policy.
func New(pol policy.Policy, workspaces Workspaces, converter Converter, deliverer Deliverer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pol:        pol,
		workspaces: workspaces,
		converter:  converter,
		deliverer:  deliverer,
		caption:    DefaultCaption,
		progress:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run holds the state of one Handle call.
type run struct {
	o      *Orchestrator
	req    Request
	conv   Conversation
	log    logging.Scoped
	m      *machine
	status StatusRef
	ws     *workspace.Workspace
	out    *Outcome
}

// Handle processes one request to completion. It never panics and always
// releases the request's workspace before returning.
func (o *Orchestrator) Handle(ctx context.Context, req Request, conv Conversation) Outcome {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	log := logging.ForRequest(req.ID)
	out := Outcome{RequestID: req.ID, State: StateReceived}

	if !mediatypes.IsVideo(req.MIMEType, req.FileName) {
		log.Debug("Ignoring non-video file %q (%s)", req.FileName, req.MIMEType)
		if err := conv.Reply(ctx, NotVideoMessage); err != nil {
			log.Warn("Failed to send instructions: %v", err)
		}
		metrics.RequestsTotal.WithLabelValues("rejected", KindNone.String()).Inc()
		return out
	}

	out.Accepted = true
	metrics.RequestsInFlight.Inc()
	defer metrics.RequestsInFlight.Dec()

	log.Info("Conversion requested by %s: %q (%s, %s)",
		requester(req), req.FileName, req.MIMEType, humanize.IBytes(uint64(max(req.DeclaredSize, 0))))

	start := time.Now()
	r := &run{o: o, req: req, conv: conv, log: log, m: newMachine(), out: &out}
	err := r.execute(ctx)

	out.Timings.Total = time.Since(start)
	metrics.StageDuration.WithLabelValues("total").Observe(out.Timings.Total.Seconds())

	if err == nil {
		out.State = r.m.state
		out.Path = r.m.history
		metrics.RequestsTotal.WithLabelValues("completed", KindNone.String()).Inc()
		log.Info("Completed in %v (%s via %s)", out.Timings.Total.Round(time.Millisecond),
			humanize.IBytes(uint64(out.OutputBytes)), out.Delivery.Method)
		return out
	}

	failedAt := r.m.state
	if advErr := r.m.advance(StateFailed); advErr != nil {
		log.Error("Cannot mark request failed: %v", advErr)
		r.m.state = StateFailed
		r.m.history = append(r.m.history, StateFailed)
	}

	out.State = r.m.state
	out.Path = r.m.history
	out.Err = err
	out.Kind = Classify(err)
	out.Message = Message(err)
	metrics.RequestsTotal.WithLabelValues("failed", out.Kind.String()).Inc()

	if out.Kind == KindUnexpected {
		log.Error("Failed while %s: %v", failedAt, err)
	} else {
		log.Warn("Failed while %s (%s): %v", failedAt, out.Kind, err)
	}

	r.reportFailure(ctx, out.Message)
	return out
}

func requester(req Request) string {
	if req.Username != "" {
		return "@" + req.Username
	}
	return fmt.Sprintf("user %d", req.UserID)
}

// execute walks the state machine. Panics are turned into errors and the
// workspace is released on every path.
func (r *run) execute(ctx context.Context) (err error) {
	defer func() {
		r.o.workspaces.Release(r.ws)
	}()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Panic while %s: %v\n%s", r.m.state, p, debug.Stack())
			err = &StageError{Stage: r.m.state, Kind: KindUnexpected, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	pol := r.o.pol

	if err := r.m.advance(StateValidating); err != nil {
		return newStageError(r.m.state, err)
	}
	if r.req.DeclaredSize > pol.MaxInputBytes {
		return &StageError{Stage: StateValidating, Kind: KindValidation, Err: &ValidationError{
			Reason: fmt.Sprintf("Sorry, your video is too large (%s). The maximum is %s.",
				humanize.IBytes(uint64(r.req.DeclaredSize)), humanize.IBytes(uint64(pol.MaxInputBytes))),
			Err: ErrInputTooLarge,
		}}
	}

	r.postStatus(ctx, StatusProcessing)

	// Downloading
	if err := r.m.advance(StateDownloading); err != nil {
		return newStageError(r.m.state, err)
	}
	ws, err := r.o.workspaces.Acquire(mediatypes.InputExtension(r.req.MIMEType, r.req.FileName))
	if err != nil {
		return newStageError(StateDownloading, fmt.Errorf("acquire workspace: %w", err))
	}
	r.ws = ws

	var downloaded int64
	stageStart := time.Now()
	err = r.o.withStageTimeout(ctx, func(ctx context.Context) error {
		var ferr error
		downloaded, ferr = r.conv.Fetch(ctx, r.req.FileID, ws.InputPath)
		return ferr
	})
	r.out.Timings.Download = r.observe("download", stageStart)
	if err != nil {
		return newStageError(StateDownloading, fmt.Errorf("download: %w", err))
	}
	if downloaded > pol.MaxInputBytes {
		return newStageError(StateDownloading, fmt.Errorf("%w: got %s, limit %s", ErrSizeMismatch,
			humanize.IBytes(uint64(downloaded)), humanize.IBytes(uint64(pol.MaxInputBytes))))
	}
	r.log.Debug("Downloaded %s to %s", humanize.IBytes(uint64(downloaded)), ws.InputPath)

	// Converting
	if err := r.m.advance(StateConverting); err != nil {
		return newStageError(r.m.state, err)
	}
	r.editStatus(ctx, StatusConverting)

	var res *transcoder.Result
	stageStart = time.Now()
	err = r.o.withStageTimeout(ctx, func(ctx context.Context) error {
		var cerr error
		res, cerr = r.o.converter.Convert(ctx, transcoder.Input{
			Path:         ws.InputPath,
			DeclaredSize: downloaded,
			OutputPath:   ws.OutputPath,
		})
		return cerr
	})
	r.out.Timings.Convert = r.observe("convert", stageStart)
	if err != nil {
		return newStageError(StateConverting, fmt.Errorf("convert: %w", err))
	}
	r.out.OutputBytes = res.OutputBytes
	r.out.Plan = res.Plan

	// SizeChecking
	if err := r.m.advance(StateSizeChecking); err != nil {
		return newStageError(r.m.state, err)
	}
	if res.OutputBytes > pol.MaxOutputBytes {
		return &StageError{Stage: StateSizeChecking, Kind: KindValidation, Err: &ValidationError{
			Reason: fmt.Sprintf("Sorry, the GIF came out too large (%s, limit %s). Please try a shorter clip.",
				humanize.IBytes(uint64(res.OutputBytes)), humanize.IBytes(uint64(pol.MaxOutputBytes))),
			Err: ErrOutputTooLarge,
		}}
	}

	// Delivering
	if err := r.m.advance(StateDelivering); err != nil {
		return newStageError(r.m.state, err)
	}
	r.editStatus(ctx, StatusUploading)

	artifact := delivery.Artifact{
		Path:      res.OutputPath,
		Duration:  outputDuration(res),
		Caption:   r.o.caption,
		RequestID: r.req.ID,
	}
	stageStart = time.Now()
	err = r.o.withStageTimeout(ctx, func(ctx context.Context) error {
		report, derr := r.o.deliverer.Deliver(ctx, r.conv, artifact)
		r.out.Delivery = report
		return derr
	})
	r.out.Timings.Deliver = r.observe("deliver", stageStart)
	if err != nil {
		return newStageError(StateDelivering, fmt.Errorf("deliver: %w", err))
	}

	if err := r.m.advance(StateCompleted); err != nil {
		return newStageError(r.m.state, err)
	}
	r.deleteStatus(ctx)
	return nil
}

// withStageTimeout runs fn under a fresh OperationTimeout budget. When the
// budget expires the returned error always matches context.DeadlineExceeded.
func (o *Orchestrator) withStageTimeout(ctx context.Context, fn func(context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, o.pol.OperationTimeout)
	defer cancel()

	err := fn(stageCtx)
	if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

func (r *run) observe(stage string, start time.Time) time.Duration {
	d := time.Since(start)
	metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	return d
}

func outputDuration(res *transcoder.Result) time.Duration {
	d := res.Source.Duration
	if res.Plan.Duration > 0 && (d <= 0 || d > res.Plan.Duration) {
		d = res.Plan.Duration
	}
	return d
}

func (r *run) postStatus(ctx context.Context, text string) {
	ref, err := r.conv.PostStatus(ctx, text)
	if err != nil {
		r.log.Warn("Failed to post status message: %v", err)
		return
	}
	r.status = ref
}

func (r *run) editStatus(ctx context.Context, text string) {
	if !r.o.progress || r.status.IsZero() {
		return
	}
	if err := r.conv.EditStatus(ctx, r.status, text); err != nil {
		r.log.Debug("Failed to update status message: %v", err)
	}
}

func (r *run) deleteStatus(ctx context.Context) {
	if r.status.IsZero() {
		return
	}
	if err := r.conv.DeleteStatus(ctx, r.status); err != nil {
		r.log.Debug("Failed to delete status message: %v", err)
	}
}

// reportFailure shows msg by editing the status message, or as a reply when
// there is none. It runs even if ctx is already done.
func (r *run) reportFailure(ctx context.Context, msg string) {
	if msg == "" {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if !r.status.IsZero() {
		err := r.conv.EditStatus(rctx, r.status, msg)
		if err == nil {
			return
		}
		r.log.Warn("Failed to edit status with error message: %v", err)
	}
	if err := r.conv.Reply(rctx, msg); err != nil {
		r.log.Warn("Failed to report error to user: %v", err)
	}
}
