// Package watering implements the countdown that keeps the irrigation relay
// energized for a fixed 1, 2 or 3 hour cycle.
//
// The state machine has three states:
//
//	Idle    (remainingMillis == -1) nothing to do
//	Running (remainingMillis  >  0) relay on, counting down on every Tick
//	Expired (remainingMillis ==  0) relay is switched off and the timer returns to Idle
//
// Expired never outlives the Tick that reaches it.
package watering
