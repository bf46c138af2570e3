// Package ids generates the 24-character object ids that name user accounts
// and form the middle segment of every grant code.
//
// A single [Generator] per engine hands out all ids, including the pending
// user ids reserved by third-party sign-up, so a provider account can never
// receive an id that a concurrent local sign-up already holds.
package ids
