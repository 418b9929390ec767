package transcoder

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

	"gifbot/internal/policy"
)

// =============================================================================
// Test helpers
// =============================================================================

type call struct {
	name string
	args []string
}

// fakeRunner answers ffprobe with a canned payload and simulates ffmpeg by
// writing the output file (the last argument).
type fakeRunner struct {
	mu    sync.Mutex
	calls []call

	probeOutput string
	probeErr    error

	// failProfiles lists profiles whose encode fails.
	failProfiles map[Profile]bool
	// outputBytes is written on a successful encode; nil writes an empty file.
	outputBytes []byte
	// block makes every ffmpeg call wait for the context.
	block bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: append([]string(nil), args...)})
	f.mu.Unlock()

	if strings.Contains(name, "ffprobe") {
		if f.probeErr != nil {
			return CommandResult{ExitCode: 1, Stderr: "probe failed"}, f.probeErr
		}
		return CommandResult{Stdout: f.probeOutput}, nil
	}

	if f.block {
		<-ctx.Done()
		return CommandResult{ExitCode: -1}, ctx.Err()
	}

	profile := ProfileSimple
	if slices.Contains(args, "-filter_complex") {
		profile = ProfilePalette
	}
	if f.failProfiles[profile] {
		return CommandResult{ExitCode: 1, Stderr: "encoder error"}, errors.New("exit status 1")
	}

	output := args[len(args)-1]
	if err := os.WriteFile(output, f.outputBytes, 0o600); err != nil {
		return CommandResult{ExitCode: 1}, err
	}
	return CommandResult{}, nil
}

func (f *fakeRunner) ffmpegCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if strings.Contains(c.name, "ffmpeg") {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func probeJSON(seconds float64, width, height int, rate string) string {
	return fmt.Sprintf(`{
  "streams": [
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "h264", "width": %d, "height": %d,
     "avg_frame_rate": %q, "r_frame_rate": %q}
  ],
  "format": {"duration": "%.3f", "format_name": "mov,mp4"}
}`, width, height, rate, rate, seconds)
}

func testInput(t *testing.T, declared int64) Input {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "input.mp4")
	if err := os.WriteFile(input, []byte("fake video"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return Input{Path: input, DeclaredSize: declared, OutputPath: filepath.Join(dir, "output.gif")}
}

func newTestTranscoder(runner Runner) *Transcoder {
	return New(policy.Default(), Options{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Runner: runner})
}

const mb = 1024 * 1024

// =============================================================================
// Plan
// =============================================================================

func TestBuildPlan(t *testing.T) {
	pol := policy.Default()

	tests := []struct {
		name      string
		info      VideoInfo
		pol       func(policy.Policy) policy.Policy
		wantDur   time.Duration
		trimmed   bool
		wantScale int
		wantFPS   int
	}{
		{
			name:    "short small clip untouched",
			info:    VideoInfo{Duration: 3 * time.Second, Width: 320, Height: 240, FPS: 30},
			wantFPS: 15,
		},
		{
			name:      "long wide clip trimmed and scaled",
			info:      VideoInfo{Duration: 15 * time.Second, Width: 1920, Height: 1080, FPS: 30},
			wantDur:   10 * time.Second,
			trimmed:   true,
			wantScale: 480,
			wantFPS:   15,
		},
		{
			name:    "exact limits are not changed",
			info:    VideoInfo{Duration: 10 * time.Second, Width: 480, FPS: 24},
			wantFPS: 15,
		},
		{
			name:    "slow source keeps its rate",
			info:    VideoInfo{Duration: time.Second, Width: 100, FPS: 9.97},
			wantFPS: 10,
		},
		{
			name:    "unknown rate uses target",
			info:    VideoInfo{Duration: time.Second, Width: 100},
			wantFPS: 15,
		},
		{
			name:    "unknown duration still capped",
			info:    VideoInfo{Width: 100, FPS: 25},
			wantDur: 10 * time.Second,
			wantFPS: 15,
		},
		{
			name:    "target above gif ceiling",
			info:    VideoInfo{Duration: time.Second, Width: 100, FPS: 120},
			pol:     func(p policy.Policy) policy.Policy { p.TargetFPS = 60; return p },
			wantFPS: GIFMaxFPS,
		},
		{
			name:    "sub one fps source",
			info:    VideoInfo{Duration: time.Second, Width: 100, FPS: 0.2},
			wantFPS: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pol
			if tt.pol != nil {
				p = tt.pol(p)
			}
			plan := BuildPlan(tt.info, p)

			if plan.Duration != tt.wantDur {
				t.Errorf("Expected Duration=%v, got %v", tt.wantDur, plan.Duration)
			}
			if plan.Trimmed != tt.trimmed {
				t.Errorf("Expected Trimmed=%v, got %v", tt.trimmed, plan.Trimmed)
			}
			if plan.ScaleWidth != tt.wantScale {
				t.Errorf("Expected ScaleWidth=%d, got %d", tt.wantScale, plan.ScaleWidth)
			}
			if plan.FPS != tt.wantFPS {
				t.Errorf("Expected FPS=%d, got %d", tt.wantFPS, plan.FPS)
			}
		})
	}
}

func TestBuildPlanUnknownWidthNeverScalesUp(t *testing.T) {
	plan := BuildPlan(VideoInfo{Duration: time.Second}, policy.Default())
	if !plan.ScaleIfWider {
		t.Fatal("Expected ScaleIfWider for unknown width")
	}
	args := BuildArgs("in.mp4", "out.gif", plan, ProfileSimple)
	if !strings.Contains(strings.Join(args, " "), "scale='min(iw,480)':-1") {
		t.Errorf("Expected capped scale expression, got %v", args)
	}
}

func TestBuildArgs(t *testing.T) {
	plan := Plan{Duration: 10 * time.Second, Trimmed: true, ScaleWidth: 480, FPS: 15}

	palette := BuildArgs("in.mp4", "out.gif", plan, ProfilePalette)
	joined := strings.Join(palette, " ")

	for _, want := range []string{"-i in.mp4", "-t 10", "fps=15", "scale=480:-1", "palettegen=max_colors=128:stats_mode=diff", "paletteuse=dither=bayer", "-f gif"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Expected palette args to contain %q, got %s", want, joined)
		}
	}
	if palette[len(palette)-1] != "out.gif" {
		t.Errorf("Expected output as last argument, got %s", palette[len(palette)-1])
	}

	simple := BuildArgs("in.mp4", "out.gif", Plan{FPS: 12}, ProfileSimple)
	joined = strings.Join(simple, " ")
	if !strings.Contains(joined, "-vf fps=12") {
		t.Errorf("Expected simple args to use -vf fps=12, got %s", joined)
	}
	if strings.Contains(joined, "-t ") || strings.Contains(joined, "scale=") {
		t.Errorf("Expected no trim or scale for untouched plan, got %s", joined)
	}
}

// =============================================================================
// Probe parsing
// =============================================================================

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"0/0", 0},
		{"", 0},
		{"25", 25},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.in); got != tt.want {
			t.Errorf("parseFrameRate(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

func TestParseProbe(t *testing.T) {
	info, err := parseProbe([]byte(probeJSON(3.5, 320, 240, "30/1")))
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if info.Duration != 3500*time.Millisecond {
		t.Errorf("Expected Duration=3.5s, got %v", info.Duration)
	}
	if info.Width != 320 || info.Height != 240 {
		t.Errorf("Expected 320x240, got %dx%d", info.Width, info.Height)
	}
	if info.FPS != 30 {
		t.Errorf("Expected FPS=30, got %v", info.FPS)
	}

	if _, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`)); !errors.Is(err, errNoVideoStream) {
		t.Errorf("Expected errNoVideoStream, got %v", err)
	}
	if _, err := parseProbe([]byte("not json")); err == nil {
		t.Error("Expected parse error for invalid JSON")
	}
}

// =============================================================================
// Convert
// =============================================================================

func TestConvertHappyPath(t *testing.T) {
	runner := &fakeRunner{probeOutput: probeJSON(3, 320, 240, "30/1"), outputBytes: []byte("GIF89a....")}
	tc := newTestTranscoder(runner)
	in := testInput(t, 5*mb)

	res, err := tc.Convert(context.Background(), in)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if res.Profile != ProfilePalette {
		t.Errorf("Expected profile %s, got %s", ProfilePalette, res.Profile)
	}
	if res.OutputBytes != int64(len(runner.outputBytes)) {
		t.Errorf("Expected OutputBytes=%d, got %d", len(runner.outputBytes), res.OutputBytes)
	}
	if res.Plan.Trimmed || res.Plan.ScaleWidth != 0 {
		t.Errorf("Expected untouched plan, got %+v", res.Plan)
	}

	calls := runner.ffmpegCalls()
	if len(calls) != 1 {
		t.Fatalf("Expected 1 ffmpeg call, got %d", len(calls))
	}
	joined := strings.Join(calls[0].args, " ")
	if strings.Contains(joined, "scale=") {
		t.Errorf("Expected no scaling for 320px source, got %s", joined)
	}
}

func TestConvertTrimsLongClip(t *testing.T) {
	runner := &fakeRunner{probeOutput: probeJSON(15, 1920, 1080, "30/1"), outputBytes: []byte("GIF89a")}
	tc := newTestTranscoder(runner)

	res, err := tc.Convert(context.Background(), testInput(t, 8*mb))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !res.Plan.Trimmed || res.Plan.Duration != 10*time.Second {
		t.Errorf("Expected trim to 10s, got %+v", res.Plan)
	}

	args := runner.ffmpegCalls()[0].args
	idx := slices.Index(args, "-t")
	if idx < 0 || args[idx+1] != "10" {
		t.Errorf("Expected -t 10 in args, got %v", args)
	}
	if !strings.Contains(strings.Join(args, " "), "scale=480:-1") {
		t.Errorf("Expected scale to 480, got %v", args)
	}
}

func TestConvertTooLargeSkipsProbe(t *testing.T) {
	runner := &fakeRunner{probeOutput: probeJSON(3, 320, 240, "30/1")}
	tc := newTestTranscoder(runner)

	_, err := tc.Convert(context.Background(), testInput(t, 25*mb))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge, got %v", err)
	}
	if n := runner.callCount(); n != 0 {
		t.Errorf("Expected no commands run, got %d", n)
	}
}

func TestConvertMeasuresSizeWhenUndeclared(t *testing.T) {
	runner := &fakeRunner{probeOutput: probeJSON(3, 320, 240, "30/1")}
	pol := policy.Default()
	pol.MaxInputBytes = 4
	tc := New(pol, Options{Runner: runner})

	_, err := tc.Convert(context.Background(), testInput(t, 0))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Expected ErrTooLarge for measured size, got %v", err)
	}
}

func TestConvertFallsBackToSimpleProfile(t *testing.T) {
	runner := &fakeRunner{
		probeOutput:  probeJSON(3, 320, 240, "30/1"),
		failProfiles: map[Profile]bool{ProfilePalette: true},
		outputBytes:  []byte("GIF89a"),
	}
	tc := newTestTranscoder(runner)

	res, err := tc.Convert(context.Background(), testInput(t, mb))
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if res.Profile != ProfileSimple {
		t.Errorf("Expected fallback to %s, got %s", ProfileSimple, res.Profile)
	}
	if n := len(runner.ffmpegCalls()); n != 2 {
		t.Errorf("Expected 2 ffmpeg calls, got %d", n)
	}
}

func TestConvertAllProfilesFail(t *testing.T) {
	runner := &fakeRunner{
		probeOutput:  probeJSON(3, 320, 240, "30/1"),
		failProfiles: map[Profile]bool{ProfilePalette: true, ProfileSimple: true},
	}
	tc := newTestTranscoder(runner)

	_, err := tc.Convert(context.Background(), testInput(t, mb))
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Expected ErrEncodeFailed, got %v", err)
	}
}

func TestConvertEmptyOutputFails(t *testing.T) {
	runner := &fakeRunner{probeOutput: probeJSON(3, 320, 240, "30/1")}
	tc := newTestTranscoder(runner)

	_, err := tc.Convert(context.Background(), testInput(t, mb))
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Expected ErrEncodeFailed for empty output, got %v", err)
	}
}

func TestConvertProbeFailures(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"probe error", &fakeRunner{probeErr: errors.New("exit status 1")}},
		{"no video stream", &fakeRunner{probeOutput: `{"streams":[{"codec_type":"audio"}],"format":{}}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestTranscoder(tt.runner)
			_, err := tc.Convert(context.Background(), testInput(t, mb))
			if !errors.Is(err, ErrEncodeFailed) {
				t.Fatalf("Expected ErrEncodeFailed, got %v", err)
			}
			if n := len(tt.runner.ffmpegCalls()); n != 0 {
				t.Errorf("Expected no encode after failed probe, got %d", n)
			}
		})
	}
}

func TestConvertTimeoutIsNotRetried(t *testing.T) {
	runner := &fakeRunner{probeOutput: probeJSON(3, 320, 240, "30/1"), block: true}
	tc := newTestTranscoder(runner)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tc.Convert(ctx, testInput(t, mb))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got %v", err)
	}
	if errors.Is(err, ErrEncodeFailed) {
		t.Error("Timeout should not be reported as an encode failure")
	}
	if n := len(runner.ffmpegCalls()); n != 1 {
		t.Errorf("Expected exactly 1 encode attempt, got %d", n)
	}
}

func TestNewDefaults(t *testing.T) {
	tc := New(policy.Default(), Options{})
	if tc.ffmpeg != "ffmpeg" || tc.ffprobe != "ffprobe" {
		t.Errorf("Expected default binaries, got %s/%s", tc.ffmpeg, tc.ffprobe)
	}
	if len(tc.profiles) != len(Profiles) {
		t.Errorf("Expected %d profiles, got %d", len(Profiles), len(tc.profiles))
	}
	if tc.Running() != 0 {
		t.Errorf("Expected no running processes, got %d", tc.Running())
	}
	tc.Cleanup()
}
