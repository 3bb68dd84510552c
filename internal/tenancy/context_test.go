package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithClinicIDAndClinicIDFromContext(t *testing.T) {
	id := uuid.New()
	ctx := WithClinicID(context.Background(), id)

	got, ok := ClinicIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected clinic id to be present")
	}
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}
}

func TestClinicIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected missing clinic id to return false")
	}

	ctx = context.WithValue(ctx, clinicKey, "not-a-uuid")
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected non-uuid clinic id to return false")
	}

	ctx = WithClinicID(context.Background(), uuid.Nil)
	if _, ok := ClinicIDFromContext(ctx); ok {
		t.Fatalf("expected nil clinic id to return false")
	}
}

func TestActorFromContextDefaultsToSystem(t *testing.T) {
	if got := ActorFromContext(context.Background()); got.UserID != "system" {
		t.Fatalf("expected system actor, got %+v", got)
	}
	ctx := WithActor(context.Background(), Actor{UserID: "u1", Role: "doctor"})
	if got := ActorFromContext(ctx); got.UserID != "u1" || got.Role != "doctor" {
		t.Fatalf("unexpected actor %+v", got)
	}
}
