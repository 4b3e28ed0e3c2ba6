package store

import "time"

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

type Account struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Plan                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Record is one row of a generic collection. Payload never carries the
// identity fields; those live in their own columns.
type Record struct {
	Collection string
	ID         string
	OwnerID    string
	Payload    map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Fields flattens the record into the JSON shape served to clients.
func (r Record) Fields() map[string]any {
	out := make(map[string]any, len(r.Payload)+4)
	for k, v := range r.Payload {
		out[k] = v
	}
	out["id"] = r.ID
	out["ownerId"] = r.OwnerID
	out["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	out["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return out
}
