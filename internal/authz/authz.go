// Package authz holds the monitoring-authorization flag reported by the
// device-side collaborator. The core never decides authorization; it only
// surfaces the last reported value.
package authz

import "sync/atomic"

// Flag is a concurrency-safe authorization flag. The zero value is
// unauthorized.
type Flag struct {
	v atomic.Bool
}

// Set records the reported authorization state.
func (f *Flag) Set(authorized bool) {
	f.v.Store(authorized)
}

// Authorized reports the last recorded state.
func (f *Flag) Authorized() bool {
	return f.v.Load()
}
