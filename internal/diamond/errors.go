package diamond

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"tradex/internal/errors"
)

var (
	ErrNotSelf = errors.New(errors.KindAuthorization, "diamond: only self call")

	ErrMalformedCut             = errors.New(errors.KindValidation, "diamond: malformed cut request")
	ErrEmptyCut                 = errors.New(errors.KindValidation, "diamond: cut has no entries")
	ErrInitPayloadWithoutTarget = errors.New(errors.KindValidation, "diamond: init payload given without init address")
	ErrEmptySelectorSet         = errors.New(errors.KindValidation, "diamond: no selectors in facet to cut")
	ErrInvalidAction            = errors.New(errors.KindValidation, "diamond: incorrect cut action")
	ErrZeroAddressModule        = errors.New(errors.KindValidation, "diamond: facet can't be address(0)")
	ErrUnbindModuleMustBeZero   = errors.New(errors.KindValidation, "diamond: remove facet address must be address(0)")

	ErrSelectorAlreadyBound  = errors.New(errors.KindConsistency, "diamond: can't add function that already exists")
	ErrSelectorNotBound      = errors.New(errors.KindConsistency, "diamond: function doesn't exist")
	ErrCannotModifyImmutable = errors.New(errors.KindConsistency, "diamond: can't modify immutable function")
	ErrNoOpRebind            = errors.New(errors.KindConsistency, "diamond: can't replace function with same function")
	ErrFunctionNotFound      = errors.New(errors.KindConsistency, "diamond: function does not exist")
	ErrNotRegistered         = errors.New(errors.KindConsistency, "diamond: selector is not registered")

	ErrModuleHasNoCode      = errors.New(errors.KindDependency, "diamond: new facet has no code")
	ErrInitializerHasNoCode = errors.New(errors.KindDependency, "diamond: init address has no code")

	ErrInitializationFailed = errors.New(errors.KindPropagated, "diamond: initialization function reverted")
)

// InitializationError reports a failing initializer. It matches
// ErrInitializationFailed and unwraps to the initializer's own error.
type InitializationError struct {
	Target  common.Address
	Payload []byte
	Err     error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("%s: target=%s payload=0x%x, err: %v", ErrInitializationFailed, e.Target.Hex(), e.Payload, e.Err)
}

func (e *InitializationError) Unwrap() []error {
	return []error{ErrInitializationFailed, e.Err}
}

func (e *InitializationError) Kind() errors.Kind {
	return errors.KindPropagated
}

func entryErr(err error, index int) error {
	return errors.Wrap(err, fmt.Sprintf("cut entry %d", index))
}
