package tenancy

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	clinicKey ctxKey = "clinicops.clinic_id"
	actorKey  ctxKey = "clinicops.actor"
)

// Actor identifies the authenticated staff member behind a request.
type Actor struct {
	UserID   string
	Role     string
	ClinicID uuid.UUID
}

// WithClinicID stores the clinic id in context.
func WithClinicID(ctx context.Context, clinicID uuid.UUID) context.Context {
	return context.WithValue(ctx, clinicKey, clinicID)
}

// ClinicIDFromContext extracts the clinic id if present.
func ClinicIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(clinicKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithActor stores the authenticated actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor, or a "system" actor for background work.
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey).(Actor); ok && actor.UserID != "" {
		return actor
	}
	return Actor{UserID: "system", Role: "system"}
}
