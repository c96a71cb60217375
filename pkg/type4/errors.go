package type4

import (
	"errors"
	"fmt"

	"github.com/gregLibert/nfc-type4/pkg/iso7816"
)

var (
	ErrApplicationNotFound          = errors.New("NDEF tag application not found")
	ErrCCNotFound                   = errors.New("capability container not found")
	ErrCCReadFailed                 = errors.New("capability container read failed")
	ErrCapabilityContainerMalformed = errors.New("capability container malformed")
	ErrReadAccessDenied             = errors.New("NDEF file is not freely readable")
	ErrNDEFFileNotFound             = errors.New("NDEF file not found")
	ErrNLENReadFailed               = errors.New("NLEN read failed")
	ErrNDEFReadFailed               = errors.New("NDEF read failed")
	ErrNLENExceedsFileSize          = errors.New("NLEN exceeds the NDEF file size")

	// ErrSessionDone is returned by Session.Command once the session reached
	// Complete or Aborted.
	ErrSessionDone = errors.New("session is done")
)

// StatusError reports a non-success trailer. Reason is one of the sentinels
// above and is what errors.Is matches.
type StatusError struct {
	State  State
	Status iso7816.StatusWord
	Reason error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v (state %s): %s", e.Reason, e.State, e.Status.Verbose())
}

func (e *StatusError) Unwrap() error {
	return e.Reason
}

// Classification groups the trailer, see iso7816.StatusWord.Classify.
func (e *StatusError) Classification() iso7816.Classification {
	return e.Status.Classify()
}

// TransportError wraps a failure of the exchange or activation collaborator.
// It ends the current cycle only.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ActivationError means no single ISO14443-4 card could be worked with. It is
// a skip, not a failure: the field is empty, holds several cards, or holds a
// card that cannot carry APDUs.
type ActivationError struct {
	Err error
}

func (e *ActivationError) Error() string {
	return "activation: " + e.Err.Error()
}

func (e *ActivationError) Unwrap() error {
	return e.Err
}
