// Package session provides the Redis-backed session registry: one hash per
// live access token plus a per-user index of session keys.
//
// # Layout
//
//	session:<access_token>                 hash {user_id, connection, refresh_ref}
//	session:<access_token>:workspaceViews  set, same TTL as the session
//	user:<id>:sessions                     set of session:<access_token> keys
//	user:<id>:refresh.generation           counter, bumped by DeleteAllForUser
//
// Rotation (refresh) and index registration run as Lua scripts so that the
// check and the mutation happen in one step on the server.
//
// # Deployment
//
// The scripts touch session, grant and user keys together and the key names
// carry no hash tags, so the registry needs a single-primary Redis (a
// standalone server or a Sentinel failover group). Redis Cluster would reject
// the scripts with CROSSSLOT.
//
// # Architecture boundaries
//
// This package owns the [Registry] (Redis operations) and the [Session]
// model. It does NOT interpret JWT tokens, compare grant bindings or emit
// events; those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goGrant, jwt, or usercache (no upward imports).
//   - Write to user:<id> mirrors; it only checks their presence.
package session
