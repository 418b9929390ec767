// Package transcoder turns a video clip into a bounded animated GIF using
// FFmpeg.
//
// A conversion runs in three steps:
//   - probe the source with ffprobe (duration, dimensions, frame rate)
//   - build a Plan that trims to the maximum duration, scales down to the
//     maximum width and clamps the frame rate
//   - encode with the first encode profile that succeeds, then verify the
//     output exists and is not empty
//
// Encoding tries a two-step palette profile first and falls back to a plain
// GIF encode. Context expiry is never retried. FFmpeg and ffprobe must be
// installed; their paths are configurable.
package transcoder
