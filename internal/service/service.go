package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatapp/internal/models"
)

const newMessageEvent = "newMessage"

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListConversation(ctx context.Context, userA string, userB string) ([]models.Message, error)
	// AddDeletedBy atomically adds userID to the message's deletedBy set
	// and reports whether the entry was newly added.
	AddDeletedBy(ctx context.Context, id string, userID string) (bool, error)
	DeleteMessage(ctx context.Context, id string) error
	ClearConversation(ctx context.Context, userID string, otherID string) error
}

type UserRepository interface {
	ListUsersExcept(ctx context.Context, userID string) ([]models.User, error)
}

type ImageResolver interface {
	Upload(ctx context.Context, image string) (string, error)
}

type Notifier interface {
	Push(userID string, event string, payload interface{})
}

type MessageService struct {
	repo     MessageRepository
	users    UserRepository
	images   ImageResolver
	notifier Notifier
}

func NewMessageService(repo MessageRepository, users UserRepository, images ImageResolver, notifier Notifier) *MessageService {
	return &MessageService{repo: repo, users: users, images: images, notifier: notifier}
}

// Send persists a new message and pushes it to the receiver if online.
// The push is best-effort; an offline receiver recovers state through a
// later conversation fetch.
func (s *MessageService) Send(ctx context.Context, senderID string, receiverID string, text string, image string) (*models.Message, error) {
	if text == "" && image == "" {
		return nil, fmt.Errorf("%w: message requires text or an image", ErrInvalid)
	}

	imageURL := ""
	if image != "" {
		url, err := s.images.Upload(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("%w: uploading image: %v", ErrUpstream, err)
		}
		imageURL = url
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.notifier.Push(receiverID, newMessageEvent, msg)
	return msg, nil
}

// ListConversation returns both directions of the pair in insertion
// order. Messages the caller soft-deleted are NOT filtered out here;
// hiding them is the client's responsibility.
func (s *MessageService) ListConversation(ctx context.Context, userA string, userB string) ([]models.Message, error) {
	return s.repo.ListConversation(ctx, userA, userB)
}

// DeleteForMe hides the message for userID only. Repeating the delete
// is a Conflict, not a no-op.
func (s *MessageService) DeleteForMe(ctx context.Context, messageID string, userID string) error {
	added, err := s.repo.AddDeletedBy(ctx, messageID, userID)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: message already deleted for you", ErrConflict)
	}
	return nil
}

// DeleteForEveryone removes the message for all participants. Only the
// original sender may do this. No push is sent here; the invoking
// client broadcasts the deletion over the realtime channel.
func (s *MessageService) DeleteForEveryone(ctx context.Context, messageID string, userID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return fmt.Errorf("%w: you can only delete your own messages for everyone", ErrForbidden)
	}
	if err := s.repo.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	log.Printf("Message %s deleted for everyone by %s", messageID, userID)
	return nil
}

// ClearConversation soft-deletes every message of the pair for userID.
// The other participant's view is untouched and not notified.
func (s *MessageService) ClearConversation(ctx context.Context, userID string, otherID string) error {
	return s.repo.ClearConversation(ctx, userID, otherID)
}

func (s *MessageService) ListUsers(ctx context.Context, callerID string) ([]models.User, error) {
	return s.users.ListUsersExcept(ctx, callerID)
}
