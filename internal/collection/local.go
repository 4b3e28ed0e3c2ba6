package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"resumekit/api/internal/util"
)

// DefaultNamespace prefixes every durable key written by Local.
const DefaultNamespace = "resumekit"

// Local stores each collection as one JSON array under "<namespace>:<name>".
// Every operation holds the lock from read to write, so concurrent calls never
// interleave on the same array.
type Local struct {
	storage   Storage
	namespace string
	newID     func() string
	logger    *log.Logger

	mu sync.Mutex
}

// LocalOption configures a Local backend.
type LocalOption func(*Local)

func WithNamespace(namespace string) LocalOption {
	return func(l *Local) {
		if namespace != "" {
			l.namespace = namespace
		}
	}
}

// WithIDGenerator overrides how inserted records get their identifier.
func WithIDGenerator(fn func() string) LocalOption {
	return func(l *Local) {
		if fn != nil {
			l.newID = fn
		}
	}
}

func WithLocalLogger(logger *log.Logger) LocalOption {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewLocal(storage Storage, opts ...LocalOption) *Local {
	l := &Local{
		storage:   storage,
		namespace: DefaultNamespace,
		newID:     func() string { return util.NewID("") },
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key is the durable key a collection is stored under.
func (l *Local) Key(collection string) string {
	return l.namespace + ":" + collection
}

func (l *Local) Find(_ context.Context, collection string, filter Filter) ([]Record, error) {
	want, err := Normalize(filter)
	if err != nil {
		return nil, fmt.Errorf("normalize filter: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load(collection)
	if err != nil {
		return nil, err
	}
	matched := make([]Record, 0, len(records))
	for _, record := range records {
		if Matches(record, want) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

func (l *Local) FindOne(ctx context.Context, collection string, filter Filter) (Record, bool, error) {
	records, err := l.Find(ctx, collection, filter)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

func (l *Local) InsertOne(_ context.Context, collection string, payload Record) (Record, error) {
	record, err := Normalize(StripIdentity(payload))
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}
	record[IDField] = l.newID()

	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load(collection)
	if err != nil {
		return nil, err
	}
	records = append(records, record)
	if err := l.save(collection, records); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

func (l *Local) UpdateOne(_ context.Context, collection string, filter Filter, update Record) (bool, error) {
	want, err := Normalize(filter)
	if err != nil {
		return false, fmt.Errorf("normalize filter: %w", err)
	}
	changes, err := Normalize(update)
	if err != nil {
		return false, fmt.Errorf("normalize update: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load(collection)
	if err != nil {
		return false, err
	}
	index := indexOf(records, want)
	if index < 0 {
		return false, nil
	}
	records[index] = Merge(records[index], changes)
	if err := l.save(collection, records); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Local) DeleteOne(_ context.Context, collection string, filter Filter) (bool, error) {
	want, err := Normalize(filter)
	if err != nil {
		return false, fmt.Errorf("normalize filter: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	records, err := l.load(collection)
	if err != nil {
		return false, err
	}
	index := indexOf(records, want)
	if index < 0 {
		return false, nil
	}
	records = append(records[:index], records[index+1:]...)
	if err := l.save(collection, records); err != nil {
		return false, err
	}
	return true, nil
}

func indexOf(records []Record, filter Filter) int {
	for i, record := range records {
		if Matches(record, filter) {
			return i
		}
	}
	return -1
}

// load reads the collection array. A corrupt array is logged and treated as
// empty; the next write replaces it. Entries that are null or lack an id are
// dropped the same way.
func (l *Local) load(collection string) ([]Record, error) {
	raw, ok, err := l.storage.GetItem(l.Key(collection))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	if !ok || raw == "" {
		return []Record{}, nil
	}
	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		l.logger.Printf("collection: discarding unreadable local %s: %v", collection, err)
		return []Record{}, nil
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.ID() == "" {
			continue
		}
		kept = append(kept, rec)
	}
	if dropped := len(records) - len(kept); dropped > 0 {
		l.logger.Printf("collection: discarding %d local %s entries without an id", dropped, collection)
	}
	return kept, nil
}

func (l *Local) save(collection string, records []Record) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}
	if err := l.storage.SetItem(l.Key(collection), string(payload)); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	return nil
}
