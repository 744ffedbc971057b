package syncer

import (
	"errors"
	"fmt"
)

// Code categorizes a phase failure. The supervisor loop maps codes to
// display states and containment behavior; none of them are process-fatal.
type Code string

const (
	// CodeNetwork is a scan or association failure. The phase is skipped
	// and naturally retried next cycle.
	CodeNetwork Code = "NETWORK"

	// CodeTransfer is a single-file download or upload failure. Only that
	// file is skipped; it stays unmarked in the ledger for retry.
	CodeTransfer Code = "TRANSFER"

	// CodeAuth is an archive login failure. The upload phase is aborted
	// for this cycle.
	CodeAuth Code = "AUTH"

	// CodeInternal is anything unexpected — ledger write failure, config
	// parse failure, a recovered panic. The supervisor displays it and
	// pauses before the loop resumes.
	CodeInternal Code = "INTERNAL"
)

// PhaseError is a categorized failure from one sync phase.
type PhaseError struct {
	Code  Code
	Phase string // "download" or "upload"
	Err   error
}

// Error implements the error interface.
func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %s: %v", e.Phase, e.Code, e.Err)
}

// Unwrap returns the underlying error.
func (e *PhaseError) Unwrap() error { return e.Err }

// CodeOf extracts the failure code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return CodeInternal
}

func networkErr(phase string, err error) error {
	return &PhaseError{Code: CodeNetwork, Phase: phase, Err: err}
}

func authErr(phase string, err error) error {
	return &PhaseError{Code: CodeAuth, Phase: phase, Err: err}
}

func internalErr(phase string, err error) error {
	return &PhaseError{Code: CodeInternal, Phase: phase, Err: err}
}
