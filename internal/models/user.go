package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleCustomer   = "customer"
	RoleContractor = "contractor"
	RoleMediator   = "mediator"
	RoleAdmin      = "admin"
)

type User struct {
	gorm.Model
	Email       string `gorm:"uniqueIndex;not null"`
	Name        string `gorm:"not null"`
	Role        string `gorm:"default:'customer'"`
	Status      string `gorm:"default:'active'"`
	PayoutRef   string // processor account reference for contractor payouts
	LastLoginAt time.Time
}

// ActiveMediator reports whether the user can take mediation cases.
func (u *User) ActiveMediator() bool {
	return u.Role == RoleMediator && u.Status == "active"
}
