// Package jwt signs and verifies the bearer tokens issued by the engine.
// Tokens are standard three-part HS256 JWTs carrying the subject user id,
// the session id, and a type discriminator ("access" or "refresh"). The
// codec only validates signature and lifetime; enforcing the expected
// token type is the caller's explicit responsibility.
package jwt
