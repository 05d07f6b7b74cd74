// Package domain defines the persistent models and derived views of
// the poll service.
package domain

import "time"

// User is a guest identity: a unique display name bound to a stable
// opaque id. There are no credentials; identity is claim-a-name.
type User struct {
	ID         uint      `gorm:"primaryKey"`
	UserID     string    `gorm:"uniqueIndex;size:64;not null"` // "user_<uuid>"
	Username   string    `gorm:"type:varchar(191);uniqueIndex;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	LastActive time.Time `gorm:"index"`
}
