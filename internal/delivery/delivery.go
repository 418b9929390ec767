package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gifbot/internal/filesystem"
	"gifbot/internal/logging"
	"gifbot/internal/metrics"

	"github.com/dustin/go-humanize"
)

var (
	// ErrTooLarge is returned by a Transport when the chat service rejects
	// the payload for its size. It stops the fallback walk.
	ErrTooLarge = errors.New("payload rejected as too large")

	// ErrExhausted is returned when every method failed.
	ErrExhausted = errors.New("all delivery methods failed")
)

// Upload is one outbound file as handed to a Transport.
type Upload struct {
	FileName string
	MIMEType string
	Data     []byte
	Caption  string

	// Animation metadata; zero values are omitted by the transport.
	Width     int
	Height    int
	Duration  time.Duration
	Thumbnail []byte
}

// Transport is the outbound side of a chat conversation.
type Transport interface {
	// SendAnimation uploads a native animation with declared metadata.
	SendAnimation(ctx context.Context, u Upload) error
	// SendAnimationAs uploads an animation with the MIME type in u forced
	// on the payload.
	SendAnimationAs(ctx context.Context, u Upload) error
	// SendDocument uploads the payload as a generic attachment.
	SendDocument(ctx context.Context, u Upload) error
}

// Artifact is a produced animation ready to be sent.
type Artifact struct {
	Path     string
	Duration time.Duration
	Caption  string

	// Data holds the file contents. Deliver fills it when nil.
	Data []byte

	// RequestID tags log lines.
	RequestID string
}

// Attempt records one method invocation.
type Attempt struct {
	Method   string
	Err      error
	Duration time.Duration
}

// Report lists every attempt in order and the method that succeeded.
type Report struct {
	Attempts []Attempt
	Method   string
}

// Succeeded reports whether a method delivered the artifact.
func (r Report) Succeeded() bool {
	return r.Method != ""
}

// Strategist walks an ordered method list.
type Strategist struct {
	methods []Method
}

// New creates a Strategist trying methods in the given order.
func New(methods ...Method) *Strategist {
	return &Strategist{methods: append([]Method(nil), methods...)}
}

// Methods returns the configured method names in order.
func (s *Strategist) Methods() []string {
	names := make([]string, len(s.methods))
	for i, m := range s.methods {
		names[i] = m.Name
	}
	return names
}

// Deliver sends the artifact with the first method that succeeds.
func (s *Strategist) Deliver(ctx context.Context, t Transport, a Artifact) (Report, error) {
	var report Report
	log := logging.ForRequest(a.RequestID)

	if a.Data == nil {
		data, err := filesystem.ReadFileWithRetry(a.Path, filesystem.DefaultRetryConfig())
		if err != nil {
			return report, fmt.Errorf("read artifact: %w", err)
		}
		a.Data = data
	}

	var errs []error
	for _, m := range s.methods {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("delivery stopped before %s: %w", m.Name, err)
		}

		start := time.Now()
		err := m.Send(ctx, t, a)
		attempt := Attempt{Method: m.Name, Err: err, Duration: time.Since(start)}
		report.Attempts = append(report.Attempts, attempt)

		switch {
		case err == nil:
			metrics.DeliveryAttempts.WithLabelValues(m.Name, "success").Inc()
			report.Method = m.Name
			log.Info("Delivered %s via %s in %v", humanize.IBytes(uint64(len(a.Data))), m.Name, attempt.Duration.Round(time.Millisecond))
			return report, nil

		case errors.Is(err, ErrTooLarge):
			metrics.DeliveryAttempts.WithLabelValues(m.Name, "too_large").Inc()
			log.Warn("Delivery via %s rejected as too large (%s)", m.Name, humanize.IBytes(uint64(len(a.Data))))
			return report, fmt.Errorf("%s: %w", m.Name, err)
		}

		metrics.DeliveryAttempts.WithLabelValues(m.Name, "error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, fmt.Errorf("%s: %w", m.Name, ctxErr)
		}
		log.Warn("Delivery via %s failed: %v", m.Name, err)
		errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
	}

	return report, fmt.Errorf("%w: %v", ErrExhausted, errors.Join(errs...))
}
