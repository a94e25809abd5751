package models

import "time"

type UserProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Session struct {
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}
