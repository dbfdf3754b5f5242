// Package contracts manages project contract documents and the immutable
// snapshots builds pin at start.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Type is a contract document kind.
type Type string

const (
	TypeBlueprint  Type = "blueprint"
	TypeManifesto  Type = "manifesto"
	TypeStack      Type = "stack"
	TypeSchema     Type = "schema"
	TypePhysics    Type = "physics"
	TypeBoundaries Type = "boundaries"
	TypePhases     Type = "phases"
	TypeUI         Type = "ui"
)

// Types lists every known contract type in canonical order.
var Types = []Type{
	TypeBlueprint, TypeManifesto, TypeStack, TypeSchema,
	TypePhysics, TypeBoundaries, TypePhases, TypeUI,
}

// Valid returns true if the type is a known value.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when a project has no contract of the given type.
var ErrNotFound = errors.New("contract not found")

// Contract is one project-scoped document.
type Contract struct {
	ProjectID string    `json:"project_id"`
	Type      Type      `json:"type"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence interface for mutable contracts.
type Store interface {
	// Get returns the current version of one contract type.
	Get(ctx context.Context, projectID string, t Type) (Contract, error)
	// List returns every contract the project has, ordered by type.
	List(ctx context.Context, projectID string) ([]Contract, error)
	// Put stores a new version of a contract.
	Put(ctx context.Context, c Contract) error
}

// MemStore is an in-memory Store for tests and single-process use.
type MemStore struct {
	mu   sync.RWMutex
	byID map[string]map[Type]Contract
}

// NewMemStore creates an empty in-memory contract store.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]map[Type]Contract)}
}

// Get returns the current version of one contract type.
func (s *MemStore) Get(ctx context.Context, projectID string, t Type) (Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[projectID][t]
	if !ok {
		return Contract{}, fmt.Errorf("%w: project=%s type=%s", ErrNotFound, projectID, t)
	}
	return c, nil
}

// List returns every contract the project has, ordered by type.
func (s *MemStore) List(ctx context.Context, projectID string) ([]Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Contract
	for _, c := range s.byID[projectID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// Put stores a new version of a contract, bumping its version counter.
func (s *MemStore) Put(ctx context.Context, c Contract) error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown contract type %q", c.Type)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID[c.ProjectID] == nil {
		s.byID[c.ProjectID] = make(map[Type]Contract)
	}
	prev := s.byID[c.ProjectID][c.Type]
	c.Version = prev.Version + 1
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	s.byID[c.ProjectID][c.Type] = c
	return nil
}

var _ Store = (*MemStore)(nil)
