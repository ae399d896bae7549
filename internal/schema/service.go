package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/JonMunkholm/fieldpipe/internal/core"
	"github.com/JonMunkholm/fieldpipe/internal/store"
)

// ErrSchemaNotFound is returned when a table has no CREATE entry in the registry.
var ErrSchemaNotFound = errors.New("schema not found")

// Registry is the persistence the service reads and seeds.
type Registry interface {
	GetScript(ctx context.Context, table, queryType string) (core.ScriptEntry, error)
	ListScripts(ctx context.Context, queryType string) ([]core.ScriptEntry, error)
	SeedScripts(ctx context.Context, entries []core.ScriptEntry) error
}

// Service serves table schemas from an in-memory catalog backed by the registry.
type Service struct {
	registry Registry

	mu      sync.RWMutex
	catalog map[string]core.TableSchema
}

// NewService returns a Service with an empty catalog.
func NewService(registry Registry) *Service {
	return &Service{
		registry: registry,
		catalog:  make(map[string]core.TableSchema),
	}
}

// Seed stores the definitions in the registry and creates their tables.
func (s *Service) Seed(ctx context.Context, defs []core.ScriptEntry) error {
	if len(defs) == 0 {
		return nil
	}
	if err := s.registry.SeedScripts(ctx, defs); err != nil {
		return fmt.Errorf("seed registry: %w", err)
	}
	slog.Info("schema registry seeded", "entries", len(defs))
	return nil
}

// Load reads every CREATE entry of the registry into the catalog.
func (s *Service) Load(ctx context.Context) error {
	entries, err := s.registry.ListScripts(ctx, core.QueryTypeCreate)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	catalog := make(map[string]core.TableSchema, len(entries))
	for _, e := range entries {
		ts, err := describeEntry(e)
		if err != nil {
			return err
		}
		catalog[e.TableName] = ts
	}

	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()

	slog.Info("schemas loaded", "tables", len(catalog))
	return nil
}

// Describe returns the schema of table, reading the registry on a catalog miss.
func (s *Service) Describe(ctx context.Context, table string) (core.TableSchema, error) {
	s.mu.RLock()
	ts, ok := s.catalog[table]
	s.mu.RUnlock()
	if ok {
		return ts, nil
	}

	entry, err := s.registry.GetScript(ctx, table, core.QueryTypeCreate)
	if errors.Is(err, store.ErrNotFound) {
		return core.TableSchema{}, fmt.Errorf("%w: %s", ErrSchemaNotFound, table)
	}
	if err != nil {
		return core.TableSchema{}, fmt.Errorf("describe %s: %w", table, err)
	}

	ts, err = describeEntry(entry)
	if err != nil {
		return core.TableSchema{}, err
	}

	s.mu.Lock()
	s.catalog[table] = ts
	s.mu.Unlock()
	return ts, nil
}

// Tables returns the names of the catalogued tables in sorted order.
func (s *Service) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.catalog))
	for name := range s.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func describeEntry(e core.ScriptEntry) (core.TableSchema, error) {
	ts, err := Parse(e.TableName, e.Query, e.DataColumns)
	if err != nil {
		return core.TableSchema{}, err
	}
	ts.Zone = e.Zone
	return ts, nil
}
