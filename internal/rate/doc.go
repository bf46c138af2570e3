// Package rate provides Redis-backed fixed-window counters for the sign-in,
// recovery and email-verification flows.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit. Keys are
// rl:<bucket>:<lowercased id>; the per-IP sign-in budget uses the bucket
// name suffixed with ".ip".
//
// # What this package must NOT do
//
//   - Decide what a flow does when limited; callers map ErrRateLimited.
//   - Be imported outside the goGrant module.
package rate
