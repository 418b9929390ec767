// Package media inspects produced animations before they are sent.
//
// Dimensions reads the frame size with libvips when it has been started
// and falls back to the GIF header otherwise. Thumbnail renders the first
// frame as a small JPEG for clients that show a preview before playback.
package media
