package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalTool marks failures reported by a subprocess (ani-cli,
	// ffmpeg, whisper).
	ErrExternalTool = errors.New("external tool error")
	// ErrPrecondition marks jobs whose inputs are missing or invalid.
	// These failures never retry.
	ErrPrecondition = errors.New("precondition error")
	// ErrTransient marks failures worth retrying (network, rate limits).
	ErrTransient = errors.New("transient failure")
	// ErrNotFound marks lookups that returned no result.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message carrying stage context while tagging it with
// the provided marker for later retry classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether a stage failure should put the job back in its
// input stage for another attempt. Precondition failures go straight to
// failed; everything else is assumed recoverable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrPrecondition)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
