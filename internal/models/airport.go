package models

import "time"

type Airport struct {
	Code      string    `json:"code" gorm:"primaryKey;type:varchar(3)"`
	Name      string    `json:"name" gorm:"not null"`
	City      string    `json:"city" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultAirports is the seed list loaded on startup.
func DefaultAirports() []Airport {
	return []Airport{
		{Code: "ATL", Name: "Hartsfield-Jackson Atlanta International", City: "Atlanta"},
		{Code: "DXB", Name: "Dubai International", City: "Dubai"},
		{Code: "LAX", Name: "Los Angeles International", City: "Los Angeles"},
		{Code: "LHR", Name: "Heathrow", City: "London"},
		{Code: "CDG", Name: "Charles de Gaulle", City: "Paris"},
		{Code: "ADD", Name: "Addis Ababa Bole International", City: "Addis Ababa"},
		{Code: "SFO", Name: "San Francisco International", City: "San Francisco"},
		{Code: "JFK", Name: "John F. Kennedy International", City: "New York"},
		{Code: "HND", Name: "Haneda", City: "Tokyo"},
		{Code: "SIN", Name: "Changi", City: "Singapore"},
		{Code: "IST", Name: "Istanbul", City: "Istanbul"},
		{Code: "FRA", Name: "Frankfurt", City: "Frankfurt"},
	}
}
