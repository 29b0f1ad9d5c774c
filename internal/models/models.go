package models

import (
	"time"
)

// FederatedPassword marks accounts created through a federated login.
// Such accounts have no local password and can never pass a password check.
const FederatedPassword = "!federated"

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"not null"                 json:"username"`
	Email        string    `gorm:"unique;not null"          json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	RegisteredAt time.Time `gorm:"autoCreateTime"           json:"registered_at"`
}

// IsFederated reports whether the account was created via a federated
// identity provider and has no local password.
func (u *User) IsFederated() bool {
	return u.PasswordHash == FederatedPassword
}

type Listing struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"   json:"id"`
	OwnerID      uint      `gorm:"index;not null"             json:"user_id"`
	Owner        *User     `gorm:"foreignKey:OwnerID"         json:"owner,omitempty"`
	Title        string    `gorm:"not null"                   json:"title"`
	Description  string    `gorm:"not null"                   json:"description"`
	Category     string    `gorm:"not null"                   json:"category"`
	IsNew        bool      `gorm:"column:new"                 json:"new"`
	Price        float64   `gorm:"not null"                   json:"price"`
	IsNegotiable bool      `gorm:"column:negociable"          json:"negociable"`
	Phone        string    `json:"phone"`
	Images       []string  `gorm:"serializer:json"            json:"images"`
	Views        uint      `gorm:"default:0"                  json:"views"`
	CreatedAt    time.Time `gorm:"column:date;autoCreateTime" json:"date"`
}
