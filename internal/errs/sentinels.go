// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across store/service/transport layers.
var (
	// ErrNotFound indicates the requested reminder does not exist for the owner.
	ErrNotFound = errors.New("not found")

	// ErrPositionOutOfRange indicates a 1-based list position outside the owner's current list.
	// It matches ErrNotFound via errors.Is but can be told apart from it.
	ErrPositionOutOfRange = fmt.Errorf("position out of range: %w", ErrNotFound)

	// ErrExtraction indicates no date/time or no message body could be extracted from the text.
	ErrExtraction = errors.New("extraction failed")

	// ErrValidation indicates rejected input (empty text, bad position, bad time).
	ErrValidation = errors.New("validation")

	// ErrLeadTime indicates the target time is earlier than the minimum lead time.
	ErrLeadTime = fmt.Errorf("%w: fire time must be at least one minute ahead", ErrValidation)

	// ErrStorage indicates the store could not complete the operation.
	ErrStorage = errors.New("storage failure")

	// ErrQueue indicates the delivery job broker rejected or could not accept a job.
	ErrQueue = errors.New("queue failure")

	// ErrUnauthorized indicates failed authentication of an API caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyStarted indicates a singleton task was started twice.
	ErrAlreadyStarted = errors.New("already started")
)
