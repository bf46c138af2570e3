// Package jwt signs and verifies the identity access tokens handed to the
// registered client.
//
// Tokens carry the OpenID-style payload iss, sub, aud, name, exp, iat,
// nonce, picture, given_name, family_name and email, plus a random jti.
// The signed string itself doubles as the session key, so the jti keeps
// tokens unique even when every other claim repeats.
package jwt
