// Package session keeps gRPC clients talking to services that come and go.
//
// ClientRetry opens a fresh channel for every attempt at a call, so a
// service restarting between attempts is picked up transparently. Calls
// are retried until they succeed, except for status codes registered as
// limited, and every loop is bounded by an optional umbrella timeout.
//
// When a SecurityConfig is supplied, ChannelSecurity obtains a bearer
// token from the configured auth domain (OAuth2 password grant), verifies
// it against the domain's JWKS, caches it, and attaches it to every call.
// An Unauthenticated reply drops the cached token so the next attempt
// fetches a new one.
package session
