package models

import "github.com/golang-jwt/jwt/v5"

// OpsClaims are the bearer-token claims accepted on operational
// endpoints. Authorization decisions for student-facing operations stay
// with the upstream gateway; this token only gates ops surfaces.
type OpsClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}
