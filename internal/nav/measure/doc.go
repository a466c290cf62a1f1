// Package measure defines the sensor measurement kinds fused by the
// estimator and the time-reordering intake buffer that feeds them to it.
//
// Measurements form a closed union (WheelDelta, InertialSample and
// PoseDetection) behind the Measurement interface. Each kind knows how to
// map itself into the estimator's reference frame and express itself as a
// linearized observation, so the filter core stays agnostic to how many
// sensor kinds exist.
package measure
