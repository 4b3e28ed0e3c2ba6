// Package collection provides a uniform CRUD interface over named entity
// collections. A remote HTTP backend is preferred; when it is unreachable the
// same operation runs against a local durable store.
package collection

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks infrastructure failures that a Fallback absorbs.
var ErrUnavailable = errors.New("collection: backend unavailable")

// RemoteError is a well-formed rejection reported by the remote backend, such
// as a duplicate email. It is returned to the caller instead of falling back.
type RemoteError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Backend is one storage strategy for every collection.
type Backend interface {
	Find(ctx context.Context, collection string, filter Filter) ([]Record, error)
	FindOne(ctx context.Context, collection string, filter Filter) (Record, bool, error)
	InsertOne(ctx context.Context, collection string, payload Record) (Record, error)
	UpdateOne(ctx context.Context, collection string, filter Filter, update Record) (bool, error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error)
}

// Adapter hands out per-collection handles over a single backend.
type Adapter struct {
	backend Backend
}

func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

func (a *Adapter) Collection(name string) *Collection {
	return &Collection{name: name, backend: a.backend}
}

// Collection is the CRUD facade for one entity collection. Callers cannot
// tell which backend served a request.
type Collection struct {
	name    string
	backend Backend
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) Find(ctx context.Context, filter Filter) ([]Record, error) {
	return c.backend.Find(ctx, c.name, filter)
}

func (c *Collection) FindOne(ctx context.Context, filter Filter) (Record, bool, error) {
	return c.backend.FindOne(ctx, c.name, filter)
}

func (c *Collection) InsertOne(ctx context.Context, payload Record) (Record, error) {
	return c.backend.InsertOne(ctx, c.name, payload)
}

func (c *Collection) UpdateOne(ctx context.Context, filter Filter, update Record) (bool, error) {
	return c.backend.UpdateOne(ctx, c.name, filter, update)
}

func (c *Collection) DeleteOne(ctx context.Context, filter Filter) (bool, error) {
	return c.backend.DeleteOne(ctx, c.name, filter)
}
