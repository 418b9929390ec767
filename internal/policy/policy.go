// Package policy defines the process-wide conversion limits shared by the
// transcoder and the request pipeline.
package policy

import (
	"errors"
	"fmt"
	"time"
)

// Default limits. The input ceiling matches the Bot API download limit and
// the output ceiling matches its upload limit.
const (
	DefaultMaxInputBytes    int64 = 20 * 1024 * 1024
	DefaultMaxOutputBytes   int64 = 50 * 1024 * 1024
	DefaultMaxDuration            = 10 * time.Second
	DefaultMaxWidth               = 480
	DefaultTargetFPS              = 15
	DefaultOperationTimeout       = 120 * time.Second
)

// Policy holds the conversion limits. It is built once at startup and passed
// by value into every component, so it is read-only after construction.
type Policy struct {
	MaxInputBytes    int64
	MaxOutputBytes   int64
	MaxDuration      time.Duration
	MaxWidth         int
	TargetFPS        int
	OperationTimeout time.Duration
}

// Default returns the stock limits.
func Default() Policy {
	return Policy{
		MaxInputBytes:    DefaultMaxInputBytes,
		MaxOutputBytes:   DefaultMaxOutputBytes,
		MaxDuration:      DefaultMaxDuration,
		MaxWidth:         DefaultMaxWidth,
		TargetFPS:        DefaultTargetFPS,
		OperationTimeout: DefaultOperationTimeout,
	}
}

// Validate reports every non-positive limit.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxInputBytes <= 0 {
		errs = append(errs, fmt.Errorf("max input bytes must be positive, got %d", p.MaxInputBytes))
	}
	if p.MaxOutputBytes <= 0 {
		errs = append(errs, fmt.Errorf("max output bytes must be positive, got %d", p.MaxOutputBytes))
	}
	if p.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("max duration must be positive, got %v", p.MaxDuration))
	}
	if p.MaxWidth <= 0 {
		errs = append(errs, fmt.Errorf("max width must be positive, got %d", p.MaxWidth))
	}
	if p.TargetFPS <= 0 {
		errs = append(errs, fmt.Errorf("target fps must be positive, got %d", p.TargetFPS))
	}
	if p.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("operation timeout must be positive, got %v", p.OperationTimeout))
	}
	return errors.Join(errs...)
}
