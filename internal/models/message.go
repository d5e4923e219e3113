package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	SenderID   string             `bson:"senderId" json:"senderId"`
	ReceiverID string             `bson:"receiverId" json:"receiverId"`
	Text       string             `bson:"text,omitempty" json:"text,omitempty"`
	Image      string             `bson:"image,omitempty" json:"image,omitempty"`
	DeletedBy  []string           `bson:"deletedBy,omitempty" json:"deletedBy,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// DeletedFor reports whether userID has soft-deleted this message.
func (m *Message) DeletedFor(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}
