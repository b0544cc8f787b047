// Package registry keeps the in-process list of completed deployments.
// Records live for the lifetime of the process; nothing is persisted.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/sitedrop/internal/logging"
)

var ErrRecordNotFound = errors.New("deployment record not found")

// Record is one completed deployment. Records are never mutated once stored.
type Record struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"sessionId"`
	ProjectName     string    `json:"projectName"`
	ContactEmail    string    `json:"email"`
	RepositoryName  string    `json:"repositoryName"`
	HostingEndpoint string    `json:"hostingEndpoint"`
	RepositoryURL   string    `json:"repositoryUrl"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Registry stores deployment records.
type Registry interface {
	Record(ctx context.Context, rec Record) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, sessionID string) (Record, error)
}

// MemoryRegistry is an append-only Registry guarded by a RWMutex.
type MemoryRegistry struct {
	mu        sync.RWMutex
	records   []Record
	bySession map[string]int
	logger    logging.Logger
	now       func() time.Time
}

// NewMemoryRegistry returns an empty registry.
func NewMemoryRegistry(logger logging.Logger) *MemoryRegistry {
	return &MemoryRegistry{
		bySession: make(map[string]int),
		logger:    logger.With(logging.Field{Key: "component", Value: "registry"}),
		now:       time.Now,
	}
}

// Record appends rec, assigning an ID and creation time when unset. Repeated
// records for the same project are kept as distinct entries.
func (r *MemoryRegistry) Record(_ context.Context, rec Record) (Record, error) {
	if rec.RepositoryName == "" {
		return Record{}, fmt.Errorf("record for %q has no repository name", rec.ProjectName)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	if rec.SessionID != "" {
		if _, seen := r.bySession[rec.SessionID]; !seen {
			r.bySession[rec.SessionID] = len(r.records) - 1
		}
	}
	n := len(r.records)
	r.mu.Unlock()

	r.logger.Info("deployment recorded",
		logging.Field{Key: "project", Value: rec.ProjectName},
		logging.Field{Key: "repo", Value: rec.RepositoryName},
		logging.Field{Key: "total", Value: n})
	return rec, nil
}

// List returns a snapshot of all records in insertion order.
func (r *MemoryRegistry) List(_ context.Context) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

// Get returns the record stored for an upload session.
func (r *MemoryRegistry) Get(_ context.Context, sessionID string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.bySession[sessionID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return r.records[i], nil
}

// Len returns the number of records.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

var _ Registry = (*MemoryRegistry)(nil)
