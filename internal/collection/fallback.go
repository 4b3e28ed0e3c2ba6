package collection

import (
	"context"
	"errors"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts operations that were served by the secondary backend.
type Metrics struct {
	fallbacks *prometheus.CounterVec
}

// NewMetrics builds the fallback counter and registers it on reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resumekit",
			Subsystem: "collection",
			Name:      "fallbacks_total",
			Help:      "Collection operations served by the local store after the remote backend failed.",
		}, []string{"collection", "op"}),
	}
	if reg != nil {
		reg.MustRegister(m.fallbacks)
	}
	return m
}

func (m *Metrics) observe(collection, op string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(collection, op).Inc()
}

// Fallback tries primary once per call and runs the same operation on
// secondary when primary reports ErrUnavailable. Any other error, including
// *RemoteError, is returned as is.
type Fallback struct {
	primary   Backend
	secondary Backend
	logger    *log.Logger
	metrics   *Metrics
}

func NewFallback(primary, secondary Backend, logger *log.Logger, metrics *Metrics) *Fallback {
	if logger == nil {
		logger = log.Default()
	}
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
		metrics:   metrics,
	}
}

func (f *Fallback) degraded(collection, op string, err error) bool {
	if !errors.Is(err, ErrUnavailable) {
		return false
	}
	f.logger.Printf("collection: %s %s falling back to local store: %v", op, collection, err)
	f.metrics.observe(collection, op)
	return true
}

func (f *Fallback) Find(ctx context.Context, collection string, filter Filter) ([]Record, error) {
	records, err := f.primary.Find(ctx, collection, filter)
	if f.degraded(collection, "find", err) {
		return f.secondary.Find(ctx, collection, filter)
	}
	return records, err
}

func (f *Fallback) FindOne(ctx context.Context, collection string, filter Filter) (Record, bool, error) {
	record, ok, err := f.primary.FindOne(ctx, collection, filter)
	if f.degraded(collection, "find_one", err) {
		return f.secondary.FindOne(ctx, collection, filter)
	}
	return record, ok, err
}

func (f *Fallback) InsertOne(ctx context.Context, collection string, payload Record) (Record, error) {
	record, err := f.primary.InsertOne(ctx, collection, payload)
	if f.degraded(collection, "insert_one", err) {
		return f.secondary.InsertOne(ctx, collection, payload)
	}
	return record, err
}

func (f *Fallback) UpdateOne(ctx context.Context, collection string, filter Filter, update Record) (bool, error) {
	ok, err := f.primary.UpdateOne(ctx, collection, filter, update)
	if f.degraded(collection, "update_one", err) {
		return f.secondary.UpdateOne(ctx, collection, filter, update)
	}
	return ok, err
}

func (f *Fallback) DeleteOne(ctx context.Context, collection string, filter Filter) (bool, error) {
	ok, err := f.primary.DeleteOne(ctx, collection, filter)
	if f.degraded(collection, "delete_one", err) {
		return f.secondary.DeleteOne(ctx, collection, filter)
	}
	return ok, err
}
