// Package userstore defines the durable user record store and ships two
// implementations: an in-memory map for tests and single-node setups, and a
// PostgreSQL store built on pgx.
//
// Every implementation enforces email uniqueness. Callers map
// ErrDuplicateEmail to the account-level "email already in use" outcome.
package userstore
