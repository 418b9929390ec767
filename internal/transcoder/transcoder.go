package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gifbot/internal/filesystem"
	"gifbot/internal/logging"
	"gifbot/internal/metrics"
	"gifbot/internal/policy"

	"github.com/dustin/go-humanize"
)

var (
	// ErrTooLarge is returned when the input exceeds the size limit.
	ErrTooLarge = errors.New("input exceeds size limit")

	// ErrEncodeFailed is returned when the clip cannot be decoded or no
	// encode profile produces a usable animation.
	ErrEncodeFailed = errors.New("encode failed")
)

// Options configures the external binaries used by a Transcoder.
type Options struct {
	FFmpegPath  string
	FFprobePath string

	// Runner overrides process execution. Nil uses os/exec.
	Runner Runner

	// Profiles overrides the encode order. Nil uses Profiles.
	Profiles []Profile
}

// Input identifies the clip to convert and where the animation goes.
type Input struct {
	Path string
	// DeclaredSize is the size reported by the sender; zero means unknown.
	DeclaredSize int64
	OutputPath   string
}

// Result describes a finished conversion. Paths stay valid until the
// owning workspace is released.
type Result struct {
	OutputPath  string
	OutputBytes int64
	Source      VideoInfo
	Plan        Plan
	Profile     Profile

	ProbeDuration  time.Duration
	EncodeDuration time.Duration
}

// Transcoder converts video clips to GIF within a fixed policy.
type Transcoder struct {
	pol      policy.Policy
	ffmpeg   string
	ffprobe  string
	profiles []Profile
	runner   Runner
	procs    *execRunner
	fsConfig filesystem.RetryConfig
}

// New creates a new Transcoder instance.
func New(pol policy.Policy, opts Options) *Transcoder {
	t := &Transcoder{
		pol:      pol,
		ffmpeg:   opts.FFmpegPath,
		ffprobe:  opts.FFprobePath,
		profiles: opts.Profiles,
		runner:   opts.Runner,
		fsConfig: filesystem.DefaultRetryConfig(),
	}
	if t.ffmpeg == "" {
		t.ffmpeg = "ffmpeg"
	}
	if t.ffprobe == "" {
		t.ffprobe = "ffprobe"
	}
	if len(t.profiles) == 0 {
		t.profiles = Profiles
	}
	if t.runner == nil {
		t.procs = newExecRunner()
		t.runner = t.procs
	}
	return t
}

// Convert probes the input, plans the output and encodes it. Errors wrap
// ErrTooLarge, ErrEncodeFailed or the context error when ctx expired.
func (t *Transcoder) Convert(ctx context.Context, in Input) (*Result, error) {
	size := in.DeclaredSize
	if size <= 0 {
		info, err := filesystem.StatWithRetry(in.Path, t.fsConfig)
		if err != nil {
			return nil, fmt.Errorf("stat input: %w", err)
		}
		size = info.Size()
	}
	if size > t.pol.MaxInputBytes {
		return nil, fmt.Errorf("%w: %s > %s", ErrTooLarge,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(t.pol.MaxInputBytes)))
	}

	start := time.Now()
	source, err := t.probe(ctx, in.Path)
	probeDuration := time.Since(start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("probe: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: probe: %v", ErrEncodeFailed, err)
	}

	plan := BuildPlan(source, t.pol)
	logging.Debug("Plan for %s: source=%v %dx%d@%.2f, trim=%v scale=%d fps=%d",
		in.Path, source.Duration, source.Width, source.Height, source.FPS,
		plan.Duration, plan.ScaleWidth, plan.FPS)

	start = time.Now()
	profile, err := t.encode(ctx, in.Path, in.OutputPath, plan)
	encodeDuration := time.Since(start)
	if err != nil {
		return nil, err
	}

	info, err := filesystem.StatWithRetry(in.OutputPath, t.fsConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: output missing: %v", ErrEncodeFailed, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: output is empty", ErrEncodeFailed)
	}

	if plan.Trimmed {
		metrics.TranscodeTrimmed.Inc()
	}
	if plan.ScaleWidth > 0 && !plan.ScaleIfWider {
		metrics.TranscodeScaled.Inc()
	}
	metrics.TranscodeOutputBytes.Observe(float64(info.Size()))

	return &Result{
		OutputPath:     in.OutputPath,
		OutputBytes:    info.Size(),
		Source:         source,
		Plan:           plan,
		Profile:        profile,
		ProbeDuration:  probeDuration,
		EncodeDuration: encodeDuration,
	}, nil
}

// encode tries each profile in order and returns the one that worked.
func (t *Transcoder) encode(ctx context.Context, input, output string, plan Plan) (Profile, error) {
	var errs []error

	for _, profile := range t.profiles {
		res, err := t.runner.Run(ctx, t.ffmpeg, BuildArgs(input, output, plan, profile)...)
		if err == nil {
			return profile, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("encode %s: %w", profile, ctxErr)
		}

		metrics.TranscodeFallbacks.WithLabelValues(string(profile)).Inc()
		logging.Warn("Encode profile %s failed for %s (exit %d): %v: %s",
			profile, input, res.ExitCode, err, res.Stderr)
		errs = append(errs, fmt.Errorf("%s: %w", profile, err))

		if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Debug("Failed to remove partial output %s: %v", output, rmErr)
		}
	}

	return "", fmt.Errorf("%w: %v", ErrEncodeFailed, errors.Join(errs...))
}

// Running returns the number of encoder processes currently tracked.
func (t *Transcoder) Running() int {
	if t.procs == nil {
		return 0
	}
	return t.procs.running()
}

// Cleanup kills any encoder process still running.
func (t *Transcoder) Cleanup() {
	if t.procs == nil {
		return
	}
	if n := t.procs.killAll(); n > 0 {
		logging.Info("Killed %d running encoder process(es)", n)
	}
}
