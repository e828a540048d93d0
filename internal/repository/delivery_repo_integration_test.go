//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
	"github.com/waseemanjum-be/NotifyHub/internal/infra/mongodb"
)

// These tests need a real Mongo reachable via MONGODB_TEST_URI. RecordAttempt
// uses transactions, so the instance must run as a replica set.
func testURI(t *testing.T) string {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI is not set")
	}
	return uri
}

func newIntegrationRepo(t *testing.T) *MongoDeliveryRepo {
	t.Helper()

	uri := testURI(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongodb.New(ctx, uri)
	if err != nil {
		t.Fatalf("mongodb.New() error = %v", err)
	}
	t.Cleanup(func() {
		client.Disconnect(context.Background()) //nolint:errcheck
	})

	db := client.Database("notifyhub_integration")
	repo := NewMongoDeliveryRepo(client, db)
	t.Cleanup(func() {
		db.Collection(collDeliveries).DeleteMany(context.Background(), bson.M{}) //nolint:errcheck
		db.Collection(collAttempts).DeleteMany(context.Background(), bson.M{})   //nolint:errcheck
	})
	return repo
}

func insertDueDelivery(t *testing.T, repo *MongoDeliveryRepo, now time.Time) string {
	t.Helper()

	id := uuid.NewString()
	_, err := repo.deliveries.InsertOne(context.Background(), &deliveryModel{
		ID:             id,
		NotificationID: uuid.NewString(),
		Channel:        domain.ChannelEmail.String(),
		Status:         domain.StatusQueued.String(),
		NextEligibleAt: now.Add(-time.Second),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	return id
}

func TestClaimDueExactlyOneWorkerWins(t *testing.T) {
	repo := newIntegrationRepo(t)
	now := time.Now().UTC()
	id := insertDueDelivery(t, repo, now)

	var wg sync.WaitGroup
	results := make([][]domain.DeliveryRecord, 2)
	for i, token := range []string{"worker-a", "worker-b"} {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			claimed, err := repo.ClaimDue(context.Background(), now, token, time.Minute, 10, nil)
			if err != nil {
				t.Errorf("ClaimDue(%s) error = %v", token, err)
				return
			}
			results[i] = claimed
		}(i, token)
	}
	wg.Wait()

	total := len(results[0]) + len(results[1])
	if total != 1 {
		t.Fatalf("claimed %d times across two workers, want exactly 1", total)
	}

	record, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.ClaimedBy != "worker-a" && record.ClaimedBy != "worker-b" {
		t.Fatalf("claimed_by = %q, want one of the racing tokens", record.ClaimedBy)
	}
	if record.Status != domain.StatusQueued {
		t.Fatalf("status = %s, claiming must keep QUEUED", record.Status)
	}
}

func TestClaimDueReclaimsExpiredLease(t *testing.T) {
	repo := newIntegrationRepo(t)
	now := time.Now().UTC()
	id := insertDueDelivery(t, repo, now)

	first, err := repo.ClaimDue(context.Background(), now, "worker-a", time.Minute, 1, nil)
	if err != nil || len(first) != 1 {
		t.Fatalf("ClaimDue(worker-a) = %v, %v, want one record", first, err)
	}

	// Within the lease the record stays off the table.
	blocked, err := repo.ClaimDue(context.Background(), now, "worker-b", time.Minute, 1, nil)
	if err != nil || len(blocked) != 0 {
		t.Fatalf("ClaimDue(worker-b) during lease = %v, %v, want none", blocked, err)
	}

	after := now.Add(2 * time.Minute)
	reclaimed, err := repo.ClaimDue(context.Background(), after, "worker-b", time.Minute, 1, nil)
	if err != nil || len(reclaimed) != 1 || reclaimed[0].ID != id {
		t.Fatalf("ClaimDue(worker-b) after expiry = %v, %v, want the record", reclaimed, err)
	}
}

func TestRecordAttemptRequiresLiveLease(t *testing.T) {
	repo := newIntegrationRepo(t)
	now := time.Now().UTC()
	id := insertDueDelivery(t, repo, now)

	if _, err := repo.ClaimDue(context.Background(), now, "worker-a", time.Minute, 1, nil); err != nil {
		t.Fatalf("ClaimDue() error = %v", err)
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		DeliveryID:    id,
		AttemptNumber: 1,
		Outcome:       domain.OutcomeRetryableFailure,
		CreatedAt:     now,
	}

	err := repo.RecordAttempt(context.Background(), "worker-b", attempt)
	if !errors.Is(err, domain.ErrLeaseLost) {
		t.Fatalf("RecordAttempt() with wrong token error = %v, want ErrLeaseLost", err)
	}

	record, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.AttemptCount != 0 {
		t.Fatalf("attempt_count = %d, a rejected attempt must not increment it", record.AttemptCount)
	}
	if attempts, _ := repo.ListAttempts(context.Background(), id); len(attempts) != 0 {
		t.Fatalf("attempts = %v, a rejected attempt must not be logged", attempts)
	}

	if err := repo.RecordAttempt(context.Background(), "worker-a", attempt); err != nil {
		t.Fatalf("RecordAttempt() with lease holder error = %v", err)
	}
	record, err = repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if record.AttemptCount != 1 {
		t.Fatalf("attempt_count = %d, want 1", record.AttemptCount)
	}
	attempts, err := repo.ListAttempts(context.Background(), id)
	if err != nil || len(attempts) != 1 {
		t.Fatalf("ListAttempts() = %v, %v, want the recorded attempt", attempts, err)
	}
}
