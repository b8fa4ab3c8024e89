package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is an account that owns training logs.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`    // Unique
	PasswordHash string             `bson:"passwordHash" json:"-"` // Never expose this via JSON
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// AuthUser is the signed-in identity seen by the log stores.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthUser returns the identity view of u.
func (u *User) AuthUser() AuthUser {
	return AuthUser{ID: u.ID.Hex(), Email: u.Email}
}
