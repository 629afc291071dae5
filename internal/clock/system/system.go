// Package system provides a wall-clock implementation of ads.Clock.
package system

import "time"

// Clock reads the system time.
type Clock struct{}

// New returns a system Clock.
func New() Clock { return Clock{} }

// Now returns the current UTC time.
func (Clock) Now() time.Time { return time.Now().UTC() }
