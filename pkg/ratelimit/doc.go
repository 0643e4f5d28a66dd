// Package ratelimit provides keyed token-bucket rate limiting middleware for
// Gin. The events API limits by client IP in front of token validation and by
// token subject behind it.
package ratelimit
