package transcoder

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"gifbot/internal/policy"
)

// GIFMaxFPS is the highest frame rate worth encoding. GIF frame delays are
// stored in 1/100 s and most decoders clamp anything under 2/100 s.
const GIFMaxFPS = 50

// Profile names an encode strategy.
type Profile string

const (
	// ProfilePalette builds an optimised palette and dithers against it.
	ProfilePalette Profile = "palette"
	// ProfileSimple is a plain GIF encode with the default palette.
	ProfileSimple Profile = "simple"
)

// Profiles is the order in which encodes are attempted.
var Profiles = []Profile{ProfilePalette, ProfileSimple}

// Plan describes how a source clip is turned into an animation.
type Plan struct {
	// Duration is the output length cap; zero means the whole clip.
	Duration time.Duration
	Trimmed  bool

	// ScaleWidth is the target width; zero means keep the source width.
	ScaleWidth int
	// ScaleIfWider caps the width without knowing the source width.
	ScaleIfWider bool

	FPS int
}

// BuildPlan derives the output shape of a clip from its probed properties.
func BuildPlan(info VideoInfo, pol policy.Policy) Plan {
	var plan Plan

	switch {
	case info.Duration > pol.MaxDuration:
		plan.Duration = pol.MaxDuration
		plan.Trimmed = true
	case info.Duration <= 0:
		plan.Duration = pol.MaxDuration
	}

	switch {
	case info.Width > pol.MaxWidth:
		plan.ScaleWidth = pol.MaxWidth
	case info.Width <= 0:
		plan.ScaleWidth = pol.MaxWidth
		plan.ScaleIfWider = true
	}

	plan.FPS = pol.TargetFPS
	if info.FPS > 0 {
		if src := int(math.Round(info.FPS)); src < plan.FPS {
			plan.FPS = src
		}
	}
	plan.FPS = clampFPS(plan.FPS)

	return plan
}

func clampFPS(fps int) int {
	if fps < 1 {
		return 1
	}
	if fps > GIFMaxFPS {
		return GIFMaxFPS
	}
	return fps
}

// filterChain returns the fps and scale filters shared by every profile.
func (p Plan) filterChain(scaleFlags string) string {
	chain := fmt.Sprintf("fps=%d", p.FPS)
	switch {
	case p.ScaleIfWider:
		chain += fmt.Sprintf(",scale='min(iw,%d)':-1:flags=%s", p.ScaleWidth, scaleFlags)
	case p.ScaleWidth > 0:
		chain += fmt.Sprintf(",scale=%d:-1:flags=%s", p.ScaleWidth, scaleFlags)
	}
	return chain
}

// BuildArgs returns the ffmpeg arguments for one encode attempt.
func BuildArgs(input, output string, plan Plan, profile Profile) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-y",
		"-i", input,
	}

	if plan.Duration > 0 {
		args = append(args, "-t", strconv.FormatFloat(plan.Duration.Seconds(), 'f', -1, 64))
	}

	switch profile {
	case ProfilePalette:
		graph := plan.filterChain("lanczos") +
			",split[s0][s1];[s0]palettegen=max_colors=128:stats_mode=diff[p];" +
			"[s1][p]paletteuse=dither=bayer:bayer_scale=5:diff_mode=rectangle"
		args = append(args, "-filter_complex", graph)
	default:
		args = append(args, "-vf", plan.filterChain("bicubic"))
	}

	return append(args,
		"-an",
		"-loop", "0",
		"-f", "gif",
		output,
	)
}
