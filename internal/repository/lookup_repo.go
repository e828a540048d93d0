package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

// LookupRepository reads the records the worker needs to build a provider
// request. All three are immutable from the engine's point of view, which is
// what makes the cache layer in front of this interface safe.
type LookupRepository interface {
	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
}

type MongoLookupRepo struct {
	notifications *mongo.Collection
	users         *mongo.Collection
	templates     *mongo.Collection
}

func NewMongoLookupRepo(db *mongo.Database) *MongoLookupRepo {
	return &MongoLookupRepo{
		notifications: db.Collection(collNotifications),
		users:         db.Collection(collUsers),
		templates:     db.Collection(collTemplates),
	}
}

func (r *MongoLookupRepo) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	var model notificationModel
	err := r.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: notification %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}
	return notificationModelToDomain(&model), nil
}

func (r *MongoLookupRepo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var model userModel
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	return userModelToDomain(&model), nil
}

func (r *MongoLookupRepo) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	var model templateModel
	err := r.templates.FindOne(ctx, bson.M{"_id": id}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: template %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch template: %w", err)
	}
	return templateModelToDomain(&model), nil
}

var _ LookupRepository = (*MongoLookupRepo)(nil)
