package nav

import "errors"

// Recoverable anomaly signals. The core never terminates on bad input; it
// reports one of these and falls back to the last known-good state.
var (
	// ErrFrameNotConnected reports that no transform chain links the
	// requested frames. The offending lookup or measurement is skipped.
	ErrFrameNotConnected = errors.New("frames not connected")

	// ErrMeasurementStale reports a measurement that arrived outside the
	// reorder window. It is dropped and counted, never fused.
	ErrMeasurementStale = errors.New("measurement outside reorder window")

	// ErrNumericalFault reports a correction that would have produced an
	// invalid covariance. The correction is skipped and the predicted
	// state retained.
	ErrNumericalFault = errors.New("covariance update numerically invalid")
)
