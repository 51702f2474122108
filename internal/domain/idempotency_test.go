package domain_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/canteen/internal/domain"
)

func TestNewPlacementKey(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		key     string
		want    domain.PlacementKey
		wantErr error
	}{
		{name: "trimmed", userID: " user-1 ", key: "  lunch-1\t", want: domain.PlacementKey{UserID: "user-1", Key: "lunch-1"}},
		{name: "max length", userID: "user-1", key: strings.Repeat("k", domain.MaxPlacementKeyLength), want: domain.PlacementKey{UserID: "user-1", Key: strings.Repeat("k", domain.MaxPlacementKeyLength)}},
		{name: "anonymous", userID: " ", key: "lunch-1", wantErr: domain.ErrUnauthorized},
		{name: "blank key", userID: "user-1", key: "   ", wantErr: domain.ErrIdempotencyKeyRequired},
		{name: "too long", userID: "user-1", key: strings.Repeat("k", domain.MaxPlacementKeyLength+1), wantErr: domain.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := domain.NewPlacementKey(tt.userID, tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !got.IsZero() {
					t.Fatalf("expected zero key on error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPlacementKey_String(t *testing.T) {
	key := domain.PlacementKey{UserID: "user-1", Key: "lunch-1"}
	if got := key.String(); got != "user-1/lunch-1" {
		t.Fatalf("unexpected string form: %q", got)
	}
}

func TestIdempotencyStatus_Replayable(t *testing.T) {
	if domain.IdempotencyStatusProcessing.Replayable() {
		t.Fatal("processing placement has no stored response")
	}
	for _, s := range []domain.IdempotencyStatus{domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed} {
		if !s.Replayable() {
			t.Fatalf("expected %s to be replayable", s)
		}
	}
	if domain.IdempotencyStatus("archived").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}

func TestIdempotencyRecord_Expired(t *testing.T) {
	now := time.Now().UTC()
	record := domain.IdempotencyRecord{ExpiresAt: now}

	if !record.Expired(now) {
		t.Fatal("record is expired at its deadline")
	}
	if record.Expired(now.Add(-time.Second)) {
		t.Fatal("record is live before its deadline")
	}
}
