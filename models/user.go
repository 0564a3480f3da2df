package models

import "time"

// User ist ein registrierter Einreicher. Die Identität wird über den API-Key aufgelöst.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	APIKey    string    `json:"-" gorm:"column:api_key;uniqueIndex;not null"`
}

// TableName gibt explizit den Tabellennamen an.
func (User) TableName() string {
	return "users"
}
