// Package nav holds the shared domain types for the internal navigation
// core: poses, twists, state estimates, reference paths, and the sentinel
// errors reported by the estimation and control packages.
//
// The processing packages are layered under this one:
//
//	frames:   named coordinate frames and time-varying rigid transforms
//	measure:  sensor measurement types and the reordering intake buffer
//	estimate: EKF pose/velocity estimator
//	pursuit:  pure-pursuit path tracker
//	limits:   actuation clamping and wheel-speed conversion
//	pipeline: the sequential drain-and-fuse loop tying them together
package nav
