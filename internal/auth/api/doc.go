// Package api exposes the authentication workflows over HTTP: registration,
// login, logout, password reset and the authenticated /me endpoint. Tokens
// travel either as an HttpOnly cookie or as a bearer credential in the
// response body, selected by configuration.
package api
