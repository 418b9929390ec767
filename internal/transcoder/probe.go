package transcoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// VideoInfo contains the properties of a source clip that drive the Plan.
type VideoInfo struct {
	Duration time.Duration `json:"duration"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	FPS      float64       `json:"fps"`
	Codec    string        `json:"codec"`
}

// probeResult is the subset of ffprobe's JSON output we read.
type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     string `json:"duration"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
}

type probeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

var errNoVideoStream = errors.New("no video stream")

func (t *Transcoder) probe(ctx context.Context, path string) (VideoInfo, error) {
	res, err := t.runner.Run(ctx, t.ffprobe,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(res.Stderr))
	}
	return parseProbe([]byte(res.Stdout))
}

func parseProbe(output []byte) (VideoInfo, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	for _, s := range result.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		info := VideoInfo{
			Width:  s.Width,
			Height: s.Height,
			Codec:  s.CodecName,
			FPS:    parseFrameRate(s.AvgFrameRate),
		}
		if info.FPS == 0 {
			info.FPS = parseFrameRate(s.RFrameRate)
		}
		secs := parseSeconds(result.Format.Duration)
		if secs == 0 {
			secs = parseSeconds(s.Duration)
		}
		info.Duration = time.Duration(secs * float64(time.Second))
		return info, nil
	}

	return VideoInfo{}, errNoVideoStream
}

// parseFrameRate reads ffprobe's "num/den" rates. Unknown rates ("0/0")
// come back as 0.
func parseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, found := strings.Cut(value, "/")
	if !found {
		return parseSeconds(value)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	rate := n / d
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < 0 {
		return 0
	}
	return rate
}

func parseSeconds(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}
