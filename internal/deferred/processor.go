// Package deferred implements the second import pass: for every entity
// with cyclic or self-referencing lookups, set those fields now that every
// tier has run and the full id map is populated.
package deferred

import (
	"context"

	"github.com/dvmigrate/core/internal/bulk"
	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/planner"
	"github.com/dvmigrate/core/internal/record"
)

// Processor runs the deferred-field update pass over an executed plan.
type Processor struct {
	Executor *bulk.Executor
}

// NewProcessor builds a processor over executor.
func NewProcessor(executor *bulk.Executor) *Processor {
	return &Processor{Executor: executor}
}

// Process walks every entity named in plan.DeferredFields and issues an
// UpdateMultiple carrying only the deferred attributes, remapped through
// idMap. A record is skipped entirely if its own id was never mapped (it
// was never imported) or if every one of its deferred fields remapped to
// nothing.
func (p *Processor) Process(ctx context.Context, archive *record.Archive, plan *planner.Plan, idMap *record.IDMap, bypass client.BypassOptions) (map[string]*bulk.BulkResult, error) {
	results := make(map[string]*bulk.BulkResult)

	for entity, fields := range plan.DeferredFields {
		if len(fields) == 0 {
			continue
		}
		records := archive.EntityData[entity]
		if len(records) == 0 {
			continue
		}

		updates := buildDeferredUpdates(entity, records, fields, idMap)
		if len(updates) == 0 {
			continue
		}

		res, err := p.Executor.UpdateMultiple(ctx, entity, updates, bypass)
		if err != nil {
			return results, err
		}
		results[entity] = res
	}

	return results, nil
}

func buildDeferredUpdates(entity string, records []*record.Record, fields []string, idMap *record.IDMap) []*record.Record {
	updates := make([]*record.Record, 0, len(records))

	for _, r := range records {
		newID, ok := idMap.Get(entity, r.ID)
		if !ok {
			continue
		}

		update := record.NewRecord(entity, newID)
		update.Set(entity+"id", record.NewString(newID))

		mapped := 0
		for _, field := range fields {
			v, ok := r.Get(field)
			if !ok || !v.IsReference() {
				continue
			}
			if newRef, ok := idMap.Get(v.Ref.Entity, v.Ref.ID); ok {
				update.Set(field, record.NewReference(v.Ref.Entity, newRef))
				mapped++
			}
		}

		if mapped == 0 {
			continue
		}
		updates = append(updates, update)
	}

	return updates
}
