package timelock

import (
	"fmt"

	"tradex/internal/errors"
)

var (
	ErrDuplicateQueuedTransaction = errors.New(errors.KindTiming, "timelock: transaction already queued")
	ErrNotQueued                  = errors.New(errors.KindTiming, "timelock: transaction not queued")
	ErrTooEarly                   = errors.New(errors.KindTiming, "timelock: transaction has not surpassed time lock")
	ErrStaleTransaction           = errors.New(errors.KindTiming, "timelock: transaction is stale")
	ErrInvalidDelay               = errors.New(errors.KindValidation, "timelock: delay or grace period out of range")
	ErrTargetCallReverted         = errors.New(errors.KindPropagated, "timelock: transaction execution reverted")
)

// TargetCallError is returned when an executed entry's call into the core
// fails. The whole execution reverts, so the entry stays queued.
type TargetCallError struct {
	Signature string
	Data      []byte
	Err       error
}

func (e *TargetCallError) Error() string {
	return fmt.Sprintf("%s: %s(%d bytes): %v", ErrTargetCallReverted, e.Signature, len(e.Data), e.Err)
}

func (e *TargetCallError) Unwrap() []error {
	return []error{ErrTargetCallReverted, e.Err}
}

func (e *TargetCallError) Kind() errors.Kind {
	return errors.KindPropagated
}
