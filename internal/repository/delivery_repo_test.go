package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/waseemanjum-be/NotifyHub/internal/domain"
)

func TestClaimFilterMatchesDueUnclaimedRecords(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	filter := claimFilter(now, nil)

	wantStatuses := bson.M{"$in": []string{"QUEUED", "RETRYING"}}
	if !reflect.DeepEqual(filter["status"], wantStatuses) {
		t.Fatalf("status clause = %v, want %v", filter["status"], wantStatuses)
	}
	if !reflect.DeepEqual(filter["next_eligible_at"], bson.M{"$lte": now}) {
		t.Fatalf("next_eligible_at clause = %v, want $lte now", filter["next_eligible_at"])
	}

	// A record is claimable when it was never claimed or its lease expired.
	wantLease := []bson.M{
		{"claimed_by": ""},
		{"lease_expires_at": bson.M{"$lt": now}},
	}
	if !reflect.DeepEqual(filter["$or"], wantLease) {
		t.Fatalf("lease clause = %v, want %v", filter["$or"], wantLease)
	}
	if _, ok := filter["channel"]; ok {
		t.Fatal("filter without channels should not restrict by channel")
	}
}

func TestClaimFilterChannelRestriction(t *testing.T) {
	t.Parallel()

	filter := claimFilter(time.Now(), []domain.Channel{domain.ChannelEmail, domain.ChannelSMS})

	want := bson.M{"$in": []string{"EMAIL", "SMS"}}
	if !reflect.DeepEqual(filter["channel"], want) {
		t.Fatalf("channel clause = %v, want %v", filter["channel"], want)
	}
}

func TestClaimUpdateStampsLease(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0).UTC()
	update := claimUpdate(now, "worker-1", 30*time.Second)

	set, ok := update["$set"].(bson.M)
	if !ok {
		t.Fatalf("update = %v, want a $set document", update)
	}
	if set["claimed_by"] != "worker-1" {
		t.Fatalf("claimed_by = %v, want worker-1", set["claimed_by"])
	}
	if set["lease_expires_at"] != now.Add(30*time.Second) {
		t.Fatalf("lease_expires_at = %v, want now+30s", set["lease_expires_at"])
	}
	if set["updated_at"] != now {
		t.Fatalf("updated_at = %v, want now", set["updated_at"])
	}
	if _, ok := set["status"]; ok {
		t.Fatal("claiming must not change the record status")
	}
}

func TestClaimDueArgumentChecks(t *testing.T) {
	t.Parallel()

	repo := &MongoDeliveryRepo{}
	now := time.Now()

	if _, err := repo.ClaimDue(context.Background(), now, "", time.Minute, 10, nil); err == nil {
		t.Fatal("ClaimDue() with empty token should fail")
	}
	if _, err := repo.ClaimDue(context.Background(), now, "worker-1", 0, 10, nil); err == nil {
		t.Fatal("ClaimDue() with no lease duration should fail")
	}

	claimed, err := repo.ClaimDue(context.Background(), now, "worker-1", time.Minute, 0, nil)
	if err != nil {
		t.Fatalf("ClaimDue() with zero limit error = %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed = %v, want none for zero limit", claimed)
	}
}
