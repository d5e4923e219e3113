package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	FullName   string             `bson:"fullName" json:"fullName"`
	Email      string             `bson:"email" json:"email"`
	ProfilePic string             `bson:"profilePic,omitempty" json:"profilePic,omitempty"`
	Password   string             `bson:"password" json:"-"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}
