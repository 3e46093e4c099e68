package domain

import "errors"

// Failure classes shared across the pipeline, lock manager, backtest
// engine and job coordinator. Callers classify with errors.Is; the job
// coordinator is the only place that turns these into persisted reason
// strings.
var (
	// ErrDataUnavailable: required candles or indicator history are
	// missing for the requested range. Not retryable without new data.
	ErrDataUnavailable = errors.New("required data unavailable")

	// ErrLockDenied: another holder owns the resource lock. The caller
	// must not queue or wait.
	ErrLockDenied = errors.New("lock denied")

	// ErrComputationUndefined: an indicator value is undefined at a
	// point (insufficient lookback). Represented as NaN in series and
	// never treated as a failure by the kernel or simulator.
	ErrComputationUndefined = errors.New("computation undefined")

	// ErrTransientIO: an infrastructure operation failed in a way that
	// may succeed on retry. Retried with bounded backoff at the adapter
	// boundary; surfaced unchanged once retries are exhausted.
	ErrTransientIO = errors.New("transient i/o failure")

	// ErrFatalConfig: invalid configuration such as an unknown
	// indicator name or malformed parameters. Never retried.
	ErrFatalConfig = errors.New("fatal configuration error")
)

// FailureReason maps a classified error to the reason string persisted
// on a failed job. Unclassified errors fall through to "internal".
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrLockDenied):
		return "lock_denied"
	case errors.Is(err, ErrFatalConfig):
		return "invalid_config"
	case errors.Is(err, ErrTransientIO):
		return "transient_io"
	case errors.Is(err, ErrComputationUndefined):
		return "computation_undefined"
	default:
		return "internal"
	}
}
