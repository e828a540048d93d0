package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

type DeliveryRepository interface {
	// ClaimDue atomically claims up to limit due delivery records for
	// workerToken, most overdue first. A record is due when its status is
	// QUEUED or RETRYING, next_eligible_at has passed, and no unexpired
	// lease is held on it.
	ClaimDue(ctx context.Context, now time.Time, workerToken string, lease time.Duration, limit int, channels []domain.Channel) ([]domain.DeliveryRecord, error)

	// RecordAttempt appends an attempt and increments attempt_count. It is
	// only valid while workerToken holds the claim; otherwise
	// domain.ErrLeaseLost is returned and nothing is written.
	RecordAttempt(ctx context.Context, workerToken string, attempt *domain.DeliveryAttempt) error

	// AdvanceState is a compare-and-swap transition: it fails with
	// domain.ErrStaleTransition when the record is no longer in from.
	// The claim is cleared as part of the transition.
	AdvanceState(ctx context.Context, id string, from, to domain.DeliveryStatus, nextEligibleAt *time.Time, now time.Time) error

	SetProviderMessageID(ctx context.Context, id, workerToken, providerMessageID string) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryRecord, error)
	ListByNotification(ctx context.Context, notificationID string) ([]domain.DeliveryRecord, error)
	ListAttempts(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error)
	EnsureIndexes(ctx context.Context) error
}

type MongoDeliveryRepo struct {
	client     *mongo.Client
	deliveries *mongo.Collection
	attempts   *mongo.Collection
}

func NewMongoDeliveryRepo(client *mongo.Client, db *mongo.Database) *MongoDeliveryRepo {
	return &MongoDeliveryRepo{
		client:     client,
		deliveries: db.Collection(collDeliveries),
		attempts:   db.Collection(collAttempts),
	}
}

func (r *MongoDeliveryRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.deliveries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "next_eligible_at", Value: 1}},
			Options: options.Index().SetName("idx_status_next_eligible"),
		},
		{
			Keys:    bson.D{{Key: "claimed_by", Value: 1}, {Key: "lease_expires_at", Value: 1}},
			Options: options.Index().SetName("idx_claim_lease"),
		},
		{
			Keys:    bson.D{{Key: "notification_id", Value: 1}, {Key: "channel", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_notification_channel"),
		},
		{
			Keys:    bson.D{{Key: "provider_message_id", Value: 1}},
			Options: options.Index().SetName("idx_provider_message_id"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create delivery indexes: %w", err)
	}

	_, err = r.attempts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "delivery_id", Value: 1}, {Key: "attempt_number", Value: 1}},
			Options: options.Index().SetName("idx_attempts_lookup"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_attempts_created_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create attempt indexes: %w", err)
	}

	return nil
}

func (r *MongoDeliveryRepo) ClaimDue(ctx context.Context, now time.Time, workerToken string, lease time.Duration, limit int, channels []domain.Channel) ([]domain.DeliveryRecord, error) {
	if workerToken == "" {
		return nil, fmt.Errorf("worker token is required")
	}
	if lease <= 0 {
		return nil, fmt.Errorf("lease duration must be positive")
	}
	if limit < 1 {
		return nil, nil
	}

	filter := claimFilter(now, channels)
	update := claimUpdate(now, workerToken, lease)

	// Each FindOneAndUpdate is a single conditional read-modify-write, so
	// two workers racing for the same record cannot both win it.
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "next_eligible_at", Value: 1}}).
		SetReturnDocument(options.After)

	claimed := make([]domain.DeliveryRecord, 0, limit)
	for len(claimed) < limit {
		var model deliveryModel
		err := r.deliveries.FindOneAndUpdate(ctx, filter, update, opts).Decode(&model)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				break
			}
			return claimed, fmt.Errorf("failed to claim delivery: %w", err)
		}
		claimed = append(claimed, *deliveryModelToDomain(&model))
	}

	return claimed, nil
}

// claimFilter matches records that are due and carry no live lease, meaning
// either never claimed or claimed under a lease that has expired.
func claimFilter(now time.Time, channels []domain.Channel) bson.M {
	filter := bson.M{
		"status":           bson.M{"$in": []string{domain.StatusQueued.String(), domain.StatusRetrying.String()}},
		"next_eligible_at": bson.M{"$lte": now},
		"$or": []bson.M{
			{"claimed_by": ""},
			{"lease_expires_at": bson.M{"$lt": now}},
		},
	}
	if len(channels) > 0 {
		names := make([]string, 0, len(channels))
		for _, ch := range channels {
			names = append(names, ch.String())
		}
		filter["channel"] = bson.M{"$in": names}
	}
	return filter
}

func claimUpdate(now time.Time, workerToken string, lease time.Duration) bson.M {
	return bson.M{"$set": bson.M{
		"claimed_by":       workerToken,
		"lease_expires_at": now.Add(lease),
		"updated_at":       now,
	}}
}

// RecordAttempt increments attempt_count and inserts the attempt document in
// one transaction so a failed insert cannot leave the counter ahead of the
// attempt log.
func (r *MongoDeliveryRepo) RecordAttempt(ctx context.Context, workerToken string, attempt *domain.DeliveryAttempt) error {
	if attempt == nil {
		return fmt.Errorf("attempt is required")
	}

	lastError := ""
	if attempt.Outcome != domain.OutcomeSuccess {
		lastError = attempt.Outcome.String()
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (interface{}, error) {
		result, err := r.deliveries.UpdateOne(ctx,
			bson.M{"_id": attempt.DeliveryID, "claimed_by": workerToken},
			bson.M{
				"$inc": bson.M{"attempt_count": 1},
				"$set": bson.M{"last_error": lastError, "updated_at": attempt.CreatedAt},
			},
		)
		if err != nil {
			return nil, err
		}
		if result.MatchedCount == 0 {
			return nil, fmt.Errorf("%w: delivery %s is not claimed by %s", domain.ErrLeaseLost, attempt.DeliveryID, workerToken)
		}

		if _, err := r.attempts.InsertOne(ctx, attemptModelFromDomain(attempt)); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			return err
		}
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}

	return nil
}

func (r *MongoDeliveryRepo) AdvanceState(ctx context.Context, id string, from, to domain.DeliveryStatus, nextEligibleAt *time.Time, now time.Time) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s is not a valid transition", domain.ErrValidation, from, to)
	}

	set := bson.M{
		"status":           to.String(),
		"claimed_by":       "",
		"lease_expires_at": time.Time{},
		"updated_at":       now,
	}
	if nextEligibleAt != nil {
		set["next_eligible_at"] = *nextEligibleAt
	}

	result, err := r.deliveries.UpdateOne(ctx, bson.M{"_id": id, "status": from.String()}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to advance delivery state: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: delivery %s is not in state %s", domain.ErrStaleTransition, id, from)
	}

	return nil
}

func (r *MongoDeliveryRepo) SetProviderMessageID(ctx context.Context, id, workerToken, providerMessageID string) error {
	result, err := r.deliveries.UpdateOne(ctx,
		bson.M{"_id": id, "claimed_by": workerToken},
		bson.M{"$set": bson.M{"provider_message_id": providerMessageID}},
	)
	if err != nil {
		return fmt.Errorf("failed to set provider message id: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: delivery %s is not claimed by %s", domain.ErrLeaseLost, id, workerToken)
	}
	return nil
}

func (r *MongoDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	var model deliveryModel
	err := r.deliveries.FindOne(ctx, bson.M{"_id": id}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch delivery: %w", err)
	}
	return deliveryModelToDomain(&model), nil
}

func (r *MongoDeliveryRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*domain.DeliveryRecord, error) {
	if providerMessageID == "" {
		return nil, domain.ErrNotFound
	}

	var model deliveryModel
	err := r.deliveries.FindOne(ctx, bson.M{"provider_message_id": providerMessageID}).Decode(&model)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch delivery by provider message id: %w", err)
	}
	return deliveryModelToDomain(&model), nil
}

func (r *MongoDeliveryRepo) ListByNotification(ctx context.Context, notificationID string) ([]domain.DeliveryRecord, error) {
	cursor, err := r.deliveries.Find(ctx,
		bson.M{"notification_id": notificationID},
		options.Find().SetSort(bson.D{{Key: "channel", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer cursor.Close(ctx)

	var models []deliveryModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %w", err)
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *MongoDeliveryRepo) ListAttempts(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	cursor, err := r.attempts.Find(ctx,
		bson.M{"delivery_id": deliveryID},
		options.Find().SetSort(bson.D{{Key: "attempt_number", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var models []attemptModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("failed to decode attempts: %w", err)
	}

	attempts := make([]domain.DeliveryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}
	return attempts, nil
}

var _ DeliveryRepository = (*MongoDeliveryRepo)(nil)
