// Package schema loads target-tenant attribute metadata, decides per-field
// inclusion per write mode, and reports archive columns the target doesn't
// recognise.
package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvmigrate/core/internal/record"
)

// MetadataSource fetches one entity's field-validity metadata from the
// target. A missing entity is reported via ok=false, not an error — the
// caller treats that as "no metadata, include everything."
type MetadataSource interface {
	FetchEntityMetadata(ctx context.Context, entity string) (meta record.EntityValidity, ok bool, err error)
}

// Validator caches one metadata round trip per entity for the lifetime of
// an import.
type Validator struct {
	source MetadataSource

	mu    sync.Mutex
	cache map[string]record.EntityValidity
}

// NewValidator builds a validator over source.
func NewValidator(source MetadataSource) *Validator {
	return &Validator{source: source, cache: make(map[string]record.EntityValidity)}
}

// Load returns entity's field-validity metadata, fetching and caching it on
// first use. A nil map return means the entity has no target metadata at
// all (include every field).
func (v *Validator) Load(ctx context.Context, entity string) (record.EntityValidity, error) {
	v.mu.Lock()
	if meta, ok := v.cache[entity]; ok {
		v.mu.Unlock()
		return meta, nil
	}
	v.mu.Unlock()

	meta, ok, err := v.source.FetchEntityMetadata(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("schema: fetch metadata for %s: %w", entity, err)
	}
	if !ok {
		meta = nil
	}

	v.mu.Lock()
	v.cache[entity] = meta
	v.mu.Unlock()
	return meta, nil
}

// MismatchError reports archive columns absent from the target, grouped by
// entity and sorted for stable error text.
type MismatchError struct {
	Missing map[string][]string
}

func (e *MismatchError) Error() string {
	entities := make([]string, 0, len(e.Missing))
	for name := range e.Missing {
		entities = append(entities, name)
	}
	sort.Strings(entities)

	s := "schema mismatch:"
	for _, name := range entities {
		s += fmt.Sprintf(" %s: %v", name, e.Missing[name])
	}
	return s
}

// DetectMissingColumns compares every archived record's attribute names
// against the cached target metadata and returns the entity -> [column]
// map of attributes the target has no validity entry for. Entities with no
// target metadata at all (nil map, per Load) are skipped: absence of
// metadata means "include everything," not "everything is missing."
func (v *Validator) DetectMissingColumns(archive *record.Archive) map[string][]string {
	v.mu.Lock()
	cache := make(map[string]record.EntityValidity, len(v.cache))
	for k, m := range v.cache {
		cache[k] = m
	}
	v.mu.Unlock()

	missing := make(map[string][]string)
	for entity, records := range archive.EntityData {
		meta, known := cache[entity]
		if !known || meta == nil {
			continue
		}
		seen := make(map[string]bool)
		for _, r := range records {
			for _, name := range r.Names() {
				if seen[name] {
					continue
				}
				seen[name] = true
				if _, ok := meta[name]; !ok {
					missing[entity] = append(missing[entity], name)
				}
			}
		}
		if cols, ok := missing[entity]; ok {
			sort.Strings(cols)
		}
	}
	return missing
}
