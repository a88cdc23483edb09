package types

import "time"

// UserStatus is the KYC state of an account
type UserStatus string

const (
	UserPendingKYC UserStatus = "PENDING_KYC"
	UserVerified   UserStatus = "VERIFIED"
	UserSuspended  UserStatus = "SUSPENDED"
)

// User is the account returned on login
type User struct {
	ID             string     `json:"id"`
	WhatsappNumber string     `json:"whatsappNumber"`
	CountryCode    string     `json:"countryCode"`
	Status         UserStatus `json:"status"`
	KycNftTokenID  string     `json:"kycNftTokenId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// AuthTokens is the access/refresh token pair
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	WhatsappNumber string `json:"whatsappNumber"`
	CountryCode    string `json:"countryCode"`
}

// LoginResponse is returned by POST /api/auth/login
type LoginResponse struct {
	User   User       `json:"user"`
	Tokens AuthTokens `json:"tokens"`
}
