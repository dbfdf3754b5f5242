package contracts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the immutable set of contracts pinned when a build starts.
// Mutable contracts may change mid-build; every handoff that must see a
// stable view (the fixer in particular) reads the snapshot instead.
type Snapshot struct {
	batch     string
	projectID string
	pinnedAt  time.Time
	docs      map[Type]Contract
}

// Pin captures the project's current contracts into an immutable snapshot.
func Pin(ctx context.Context, store Store, projectID string) (*Snapshot, error) {
	list, err := store.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	docs := make(map[Type]Contract, len(list))
	for _, c := range list {
		docs[c.Type] = c
	}
	return &Snapshot{
		batch:     uuid.New().String()[:8],
		projectID: projectID,
		pinnedAt:  time.Now(),
		docs:      docs,
	}, nil
}

// Batch returns the snapshot's identifier, recorded on the build.
func (s *Snapshot) Batch() string {
	return s.batch
}

// ProjectID returns the project the snapshot belongs to.
func (s *Snapshot) ProjectID() string {
	return s.projectID
}

// PinnedAt returns when the snapshot was captured.
func (s *Snapshot) PinnedAt() time.Time {
	return s.pinnedAt
}

// Get returns the pinned contract of one type.
func (s *Snapshot) Get(t Type) (Contract, bool) {
	c, ok := s.docs[t]
	return c, ok
}

// All returns the pinned contracts in canonical type order.
func (s *Snapshot) All() []Contract {
	var out []Contract
	for _, t := range Types {
		if c, ok := s.docs[t]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Len returns how many contract types the snapshot holds.
func (s *Snapshot) Len() int {
	return len(s.docs)
}
