// Package estimate fuses buffered sensor measurements into a single
// pose-and-velocity estimate with uncertainty, using an extended Kalman
// filter over [x, y, heading, v, omega].
//
// The filter starts Uninitialized: predictions and corrections still run,
// but the pose covariance is pinned large and the emitted estimates are
// flagged not ready. The first accepted absolute fixes (configurably
// averaged) transition it to Tracking; only an explicit Reset regresses it.
package estimate
