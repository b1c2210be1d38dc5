// Package auth provides JWT authentication for coach-gateway.
//
// Clients authenticate with HS256-signed JWT tokens carrying the user id
// in the "sub" claim. Tokens are signed with the configured jwt_secret.
//
// # Usage
//
// Verify and generate tokens:
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate("user-123", time.Hour)
//	userID, err := verifier.Verify(token)
//
// Protect an HTTP handler:
//
//	handler = auth.Middleware(verifier)(handler)
//
// When no jwt_secret is configured the gateway skips the middleware
// entirely and all requests are anonymous.
package auth
