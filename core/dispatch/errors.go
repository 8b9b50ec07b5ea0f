package dispatch

import (
	"errors"
	"fmt"

	"github.com/kilianp07/wavematch/core/audit"
)

var (
	// ErrNoEligibleCandidates is returned by DispatchWave when no candidate
	// is left after filtering. Callers may retry with relaxed filters.
	ErrNoEligibleCandidates = errors.New("no eligible candidates")
	// ErrOfferNotPending rejects a response to an offer that is not pending.
	ErrOfferNotPending = errors.New("offer not pending")
	// ErrOfferNotAcceptable rejects a confirmation of an offer that is not
	// accepted.
	ErrOfferNotAcceptable = errors.New("offer not acceptable")
	// ErrOpportunityClosed is returned when an operation targets an
	// opportunity that no longer takes waves or responses.
	ErrOpportunityClosed = errors.New("opportunity closed")
	// ErrOpportunityNotConfirmed is returned when completing an opportunity
	// that has no confirmed selection.
	ErrOpportunityNotConfirmed = errors.New("opportunity not confirmed")
	// ErrUnknownAction rejects a response that is neither accept nor refuse.
	ErrUnknownAction = errors.New("unknown response action")
	// ErrConfiguration is the root of every ConfigError.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuditWriteFailed is logged and counted but never returned by the
	// state-machine operations.
	ErrAuditWriteFailed = audit.ErrWriteFailed
)

// ConfigError names the setting that failed validation.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Field, e.Err)
}

// Unwrap makes errors.Is(err, ErrConfiguration) hold as well as matching the
// underlying cause.
func (e *ConfigError) Unwrap() []error { return []error{ErrConfiguration, e.Err} }

func configErr(field string, err error) error {
	return &ConfigError{Field: field, Err: err}
}
