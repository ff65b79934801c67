package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a registered (or guest) account. Passwords are stored as
// bcrypt hashes only. Notifications controls whether the user receives mail
// when anyone publishes a post; guests are created with it disabled.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Email            string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FirstName        string     `gorm:"size:64;not null" json:"first_name"`
	PasswordHash     string     `gorm:"size:255" json:"-"`
	Notifications    bool       `gorm:"default:true" json:"notifications"`
	UnsubscribeToken string     `gorm:"size:36;uniqueIndex" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Posts            []Post     `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Favorites        []Favorite `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Likes            []Like     `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate ensures timestamps are set even when the record is built by hand.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate refreshes the UpdatedAt timestamp.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
