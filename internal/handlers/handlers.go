package handlers

import (
	"time"
)

// BotStatus reports the Telegram side of the service.
type BotStatus interface {
	Username() string
	Polling() bool
	InFlight() int
}

// ScratchStatus reports per-request workspace usage.
type ScratchStatus interface {
	Active() int
	ScratchUsage() (int64, int, error)
}

// EncoderStatus reports live encoder processes.
type EncoderStatus interface {
	Running() int
}

type Handlers struct {
	bot        BotStatus
	scratch    ScratchStatus
	encoder    EncoderStatus
	encoderErr error
	started    time.Time
}

// New creates the ops handlers. encoderErr is the result of the startup
// ffmpeg/ffprobe check; a non-nil value keeps the service out of readiness.
func New(bot BotStatus, scratch ScratchStatus, encoder EncoderStatus, encoderErr error) *Handlers {
	return &Handlers{
		bot:        bot,
		scratch:    scratch,
		encoder:    encoder,
		encoderErr: encoderErr,
		started:    time.Now(),
	}
}

func (h *Handlers) ready() bool {
	return h.bot != nil && h.bot.Polling() && h.encoderErr == nil
}
