// Package auth consumes operator identities for the chat gateway.
//
// Operators authenticate with HS256 JWTs signed with the configured
// auth.jwt_secret. The "sub" claim is the user id and the optional "name"
// claim is the display name shown to other operators (typing indicators,
// connection events). Tokens are issued elsewhere; the chat-gateway token
// command exists for development and service accounts.
//
// # HTTP
//
// HTTPAuthMiddleware accepts the token as a bearer Authorization header or,
// for EventSource clients that cannot set headers, as the access_token query
// parameter. The resolved Identity is available through FromContext.
//
// With no secret configured the middleware runs in anonymous mode and every
// request carries the Anonymous identity.
package auth
