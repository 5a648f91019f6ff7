package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Account struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Profile is the traveler card shown to other users. UserID is the owning
// account's id.
type Profile struct {
	UserID       string     `json:"user_id" gorm:"primaryKey;type:varchar(36)"`
	Name         string     `json:"name" gorm:"not null"`
	Age          int        `json:"age"`
	Gender       string     `json:"gender"`
	Bio          string     `json:"bio"`
	AirportCode  string     `json:"airport_code" gorm:"index:idx_profiles_scope"`
	Terminal     string     `json:"terminal" gorm:"index:idx_profiles_scope"`
	FlightNumber string     `json:"flight_number"`
	Gate         string     `json:"gate"`
	Destination  string     `json:"destination"`
	BoardingTime *time.Time `json:"boarding_time,omitempty"`
	PhotoURL     *string    `json:"photo_url,omitempty"`
	DeviceToken  *string    `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Onboarded reports whether the profile has completed onboarding.
func (p Profile) Onboarded() bool {
	return strings.TrimSpace(p.Name) != ""
}

// LocationScope narrows the candidate pool to an airport and, optionally, a
// terminal inside it.
type LocationScope struct {
	AirportCode string `json:"airport_code" form:"airport_code"`
	Terminal    string `json:"terminal" form:"terminal"`
}

func (s LocationScope) IsZero() bool {
	return s.AirportCode == "" && s.Terminal == ""
}

func (s LocationScope) Normalize() LocationScope {
	return LocationScope{
		AirportCode: strings.ToUpper(strings.TrimSpace(s.AirportCode)),
		Terminal:    strings.TrimSpace(s.Terminal),
	}
}

// Contains reports whether p is located inside the scope.
func (s LocationScope) Contains(p Profile) bool {
	if !strings.EqualFold(p.AirportCode, s.AirportCode) {
		return false
	}
	return s.Terminal == "" || p.Terminal == s.Terminal
}
