package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatapp/internal/models"
	"chatapp/internal/service"
)

type MongoRepo struct {
	messages *mongo.Collection
	users    *mongo.Collection
}

func NewMongoRepo(ctx context.Context, uri string, dbName string) (*MongoRepo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := client.Database(dbName)
	repo := &MongoRepo{
		messages: db.Collection("messages"),
		users:    db.Collection("users"),
	}

	_, err = repo.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "senderId", Value: 1}, {Key: "receiverId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure message indexes: %w", err)
	}
	return repo, nil
}

var _ service.MessageRepository = (*MongoRepo)(nil)
var _ service.UserRepository = (*MongoRepo)(nil)

func (r *MongoRepo) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	res, err := r.messages.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = oid
	}
	return nil
}

func (r *MongoRepo) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: message %q", service.ErrNotFound, id)
	}
	var msg models.Message
	err = r.messages.FindOne(ctx, bson.M{"_id": oid}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: message %q", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// conversationFilter matches both directions of the unordered pair.
func conversationFilter(userA string, userB string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"senderId": userA, "receiverId": userB},
		bson.M{"senderId": userB, "receiverId": userA},
	}}
}

func (r *MongoRepo) ListConversation(ctx context.Context, userA string, userB string) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.messages.Find(ctx, conversationFilter(userA, userB), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := []models.Message{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// AddDeletedBy uses $addToSet so concurrent deletes for the same user
// cannot produce duplicate entries; a modified count of zero means the
// user was already in the set.
func (r *MongoRepo) AddDeletedBy(ctx context.Context, id string, userID string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, fmt.Errorf("%w: message %q", service.ErrNotFound, id)
	}
	res, err := r.messages.UpdateByID(ctx, oid, bson.M{"$addToSet": bson.M{"deletedBy": userID}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		return false, fmt.Errorf("%w: message %q", service.ErrNotFound, id)
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoRepo) DeleteMessage(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: message %q", service.ErrNotFound, id)
	}
	res, err := r.messages.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: message %q", service.ErrNotFound, id)
	}
	return nil
}

func (r *MongoRepo) ClearConversation(ctx context.Context, userID string, otherID string) error {
	_, err := r.messages.UpdateMany(ctx, conversationFilter(userID, otherID),
		bson.M{"$addToSet": bson.M{"deletedBy": userID}})
	return err
}

func (r *MongoRepo) ListUsersExcept(ctx context.Context, userID string) ([]models.User, error) {
	filter := bson.M{}
	if oid, err := primitive.ObjectIDFromHex(userID); err == nil {
		filter = bson.M{"_id": bson.M{"$ne": oid}}
	}
	opts := options.Find().SetSort(bson.D{{Key: "fullName", Value: 1}})
	cursor, err := r.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	results := []models.User{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *MongoRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: user %q", service.ErrNotFound, id)
	}
	var user models.User
	err = r.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: user %q", service.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
