// Package pursuit converts the current state estimate plus a reference
// path into a feasible velocity command using a pure-pursuit lookahead
// strategy. It refuses to steer on an untrustworthy estimate and reports
// terminal conditions instead of chasing stale targets.
package pursuit
