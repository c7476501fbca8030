package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/velmie/txoutbox"
)

var (
	// ErrConflict is returned (marked retryable) when a transaction touched a row that changed before commit.
	ErrConflict = errors.New("outbox memory: transaction conflict")
	// ErrScan is returned when a stored value cannot be assigned to a Scan destination.
	ErrScan = errors.New("outbox memory: scan failed")
)

type rowRef struct {
	entity string
	key    string
}

type row struct {
	keys    []outbox.Column
	values  []outbox.Column
	version uint64
}

func (r *row) scan(dest ...any) error {
	cols := len(r.keys) + len(r.values)
	if len(dest) != cols {
		return fmt.Errorf("%w: expected %d destinations, got %d", ErrScan, cols, len(dest))
	}
	for i, col := range r.keys {
		if err := assign(dest[i], cloneValue(col.Value)); err != nil {
			return err
		}
	}
	for i, col := range r.values {
		if err := assign(dest[len(r.keys)+i], cloneValue(col.Value)); err != nil {
			return err
		}
	}

	return nil
}

// Store is an in-process StateStore and OutboxStore.
type Store struct {
	mu      sync.Mutex
	rows    map[rowRef]*row
	version uint64
}

var (
	_ outbox.StateStore     = (*Store)(nil)
	_ outbox.OutboxStore    = (*Store)(nil)
	_ outbox.PendingCounter = (*Store)(nil)
)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{rows: make(map[rowRef]*row)}
}

// RunStateTransaction runs fn in an optimistic transaction and commits its writes atomically.
func (s *Store) RunStateTransaction(
	ctx context.Context,
	fn func(ctx context.Context, state outbox.StateTransaction) error,
) error {
	tx := &stateTx{
		store:  s,
		seen:   make(map[rowRef]uint64),
		writes: make(map[rowRef]*row),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.commit(tx)
}

func (s *Store) commit(tx *stateTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ref, version := range tx.seen {
		if s.versionLocked(ref) != version {
			return outbox.Retryable(fmt.Errorf("%w: %s %s", ErrConflict, ref.entity, ref.key))
		}
	}

	for _, ref := range tx.order {
		written := tx.writes[ref]
		if written == nil {
			delete(s.rows, ref)

			continue
		}
		s.version++
		written.version = s.version
		s.rows[ref] = written
	}

	return nil
}

func (s *Store) versionLocked(ref rowRef) uint64 {
	if existing, ok := s.rows[ref]; ok {
		return existing.version
	}

	return 0
}

// FetchEvents claims up to opts.BatchSize outbox rows whose lease is absent or expired.
func (s *Store) FetchEvents(_ context.Context, opts outbox.FetchOptions) ([]outbox.Event, error) {
	if opts.BatchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	refs := s.eventRefsLocked()
	events := make([]outbox.Event, 0, opts.BatchSize)
	for _, ref := range refs {
		if len(events) == opts.BatchSize {
			break
		}

		var event outbox.Event
		if err := event.Scan(s.rows[ref].scan); err != nil {
			return nil, err
		}
		if !event.Claimable(opts.Now) {
			continue
		}

		lease := opts.LeaseExpiration.UTC()
		event.LeaseExpiration = &lease
		s.putLocked(ref, &event)
		events = append(events, event)
	}

	return events, nil
}

// UpdateOutbox deletes delivered rows.
func (s *Store) UpdateOutbox(_ context.Context, delivered []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range delivered {
		delete(s.rows, refOf(&delivered[i]))
	}

	return nil
}

// PendingCount returns the number of outbox rows.
func (s *Store) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.eventRefsLocked()), nil
}

// Events returns a snapshot of the outbox rows ordered by id.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := s.eventRefsLocked()
	events := make([]outbox.Event, 0, len(refs))
	for _, ref := range refs {
		var event outbox.Event
		if err := event.Scan(s.rows[ref].scan); err != nil {
			continue
		}
		events = append(events, event)
	}

	return events
}

// Len returns the number of rows stored for entity.
func (s *Store) Len(entity string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for ref := range s.rows {
		if ref.entity == entity {
			count++
		}
	}

	return count
}

func (s *Store) eventRefsLocked() []rowRef {
	refs := make([]rowRef, 0)
	for ref := range s.rows {
		if ref.entity == outbox.EventEntityName {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].key < refs[j].key })

	return refs
}

func (s *Store) putLocked(ref rowRef, entity outbox.Entity) {
	s.version++
	s.rows[ref] = &row{
		keys:    cloneColumns(entity.KeyColumns()),
		values:  cloneColumns(entity.ValueColumns()),
		version: s.version,
	}
}

func refOf(entity outbox.Entity) rowRef {
	return rowRef{entity: entity.EntityName(), key: encodeKey(entity.KeyColumns())}
}

func encodeKey(cols []outbox.Column) string {
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s=%v", col.Name, col.Value)
	}

	return strings.Join(parts, "\x00")
}

func cloneColumns(cols []outbox.Column) []outbox.Column {
	out := make([]outbox.Column, len(cols))
	for i, col := range cols {
		out[i] = outbox.Column{Name: col.Name, Value: cloneValue(col.Value)}
	}

	return out
}
