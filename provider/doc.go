// Package provider implements the third-party OpenID side of sign-up and
// sign-in: authorization URI construction, a liveness probe of the
// authorization endpoint, and the code-for-id_token exchange built on
// golang.org/x/oauth2.
//
// Providers are configured from a discovery document. [Discover] and
// [DiscoveryCache] fetch one at startup; [Google] and [Facebook] ship the
// published endpoints as defaults.
package provider
