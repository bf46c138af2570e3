// Package middleware exposes HTTP middleware that puts goGrant access-token
// validation in front of a handler.
//
// # Guards
//
//   - [Guard] verifies the bearer token through Engine.ValidateAccessToken
//     and stores the resulting principal in the request context.
//   - [ClientIP] attaches the caller's address so SignIn can apply the
//     per-IP budget.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT parse
// JWTs or touch Redis; every decision is delegated to the engine.
package middleware
