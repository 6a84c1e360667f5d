package models

import "time"

const ProviderGoogle = "google"

// ExternalCredential links a user to the calendar provider. The refresh token
// is stored for the linking flow; nothing here refreshes it.
type ExternalCredential struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"createdAt"`
}
