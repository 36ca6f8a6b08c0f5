package api

import "time"

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	// Token is empty when the session travels as a cookie.
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type loginResponse struct {
	Account accountResponse `json:"account"`
	Session sessionResponse `json:"session"`
}

type registerResponse struct {
	Account accountResponse `json:"account"`
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	Account accountResponse `json:"account"`
	Session sessionResponse `json:"session"`
}

type resetRequestResponse struct {
	// Accepted is always true unless outcome disclosure is enabled.
	Accepted bool `json:"accepted"`
}
