package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

type NotificationRepository interface {
	// CreateWithDeliveries persists one notification plus one delivery
	// record per requested channel in a single transaction. A duplicate
	// idempotency key returns domain.ErrConflict.
	CreateWithDeliveries(ctx context.Context, n *domain.Notification, deliveries []domain.DeliveryRecord) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error)
	EnsureIndexes(ctx context.Context) error
}

type MongoNotificationRepo struct {
	client        *mongo.Client
	notifications *mongo.Collection
	deliveries    *mongo.Collection
}

func NewMongoNotificationRepo(client *mongo.Client, db *mongo.Database) *MongoNotificationRepo {
	return &MongoNotificationRepo{
		client:        client,
		notifications: db.Collection(collNotifications),
		deliveries:    db.Collection(collDeliveries),
	}
}

// EnsureIndexes is the Mongo equivalent of migrations for these collections.
// Safe to call on every startup.
func (r *MongoNotificationRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.notifications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_idempotency_key"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_user_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}
	return nil
}

func (r *MongoNotificationRepo) CreateWithDeliveries(ctx context.Context, n *domain.Notification, deliveries []domain.DeliveryRecord) error {
	notificationDoc := notificationModelFromDomain(n)
	deliveryDocs := make([]interface{}, 0, len(deliveries))
	for i := range deliveries {
		deliveryDocs = append(deliveryDocs, deliveryModelFromDomain(&deliveries[i]))
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
		if _, err := r.notifications.InsertOne(ctx, notificationDoc); err != nil {
			return nil, err
		}
		if len(deliveryDocs) > 0 {
			if _, err := r.deliveries.InsertMany(ctx, deliveryDocs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: idempotency key %q already exists", domain.ErrConflict, n.IdempotencyKey)
		}
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

func (r *MongoNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model notificationModel
	err := r.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch notification: %w", err)
	}
	return notificationModelToDomain(&model), nil
}

func (r *MongoNotificationRepo) GetByIdempotencyKey(ctx context.Context, idempotencyKey string) (*domain.Notification, error) {
	var model notificationModel
	err := r.notifications.FindOne(ctx, bson.M{"idempotency_key": idempotencyKey}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch notification by idempotency key: %w", err)
	}
	return notificationModelToDomain(&model), nil
}

var _ NotificationRepository = (*MongoNotificationRepo)(nil)
