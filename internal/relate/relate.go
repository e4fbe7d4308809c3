// Package relate implements the third import pass: materialising
// many-to-many associations recorded in the archive, with relationship
// name resolution and idempotent duplicate handling.
package relate

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/pool"
	"github.com/dvmigrate/core/internal/progress"
	"github.com/dvmigrate/core/internal/record"
)

// RoleResolver looks up whether a role id exists directly on the target,
// used as the cross-tenant role-lookup fallback when the id map has no
// entry for a role reference.
type RoleResolver interface {
	RoleExists(ctx context.Context, id string) (bool, error)
}

// NameCache indexes a many-to-many relationship's schema name and its
// intersect entity name to the same canonical schema name, since the
// archive may record either.
type NameCache map[string]string

// BuildNameCache indexes every relationship declared in schema under both
// its schema name and its intersect entity name.
func BuildNameCache(schema *record.Schema) NameCache {
	cache := make(NameCache)
	for _, es := range schema.Entities {
		for _, rel := range es.ManyToMany {
			cache[rel.SchemaName] = rel.SchemaName
			if rel.IntersectName != "" {
				cache[rel.IntersectName] = rel.SchemaName
			}
		}
	}
	return cache
}

// Resolve returns the canonical schema name for a relationship name as
// recorded in the archive, falling back to the name itself if it isn't in
// the cache (an unresolvable name is still attempted verbatim).
func (c NameCache) Resolve(name string) string {
	if canonical, ok := c[name]; ok {
		return canonical
	}
	return name
}

// Result is the relationship pass's aggregate outcome.
type Result struct {
	Processed int
	Failures  int
	Errors    []*record.MigrationError
}

// Processor materialises M2M blocks into associate requests.
type Processor struct {
	Pool       *pool.Pool
	Names      NameCache
	RoleLookup RoleResolver
	Progress   *progress.Tracker
}

// NewProcessor builds a processor.
func NewProcessor(p *pool.Pool, names NameCache, roleLookup RoleResolver) *Processor {
	return &Processor{Pool: p, Names: names, RoleLookup: roleLookup}
}

type workItem struct {
	sourceEntity string
	block        record.M2MBlock
}

// Process flattens every archived M2M block into a work item and runs
// them with bounded parallelism. continueOnError=false stops launching new
// items after the first non-duplicate-key failure and returns that
// failure once the in-flight items drain.
func (p *Processor) Process(ctx context.Context, archive *record.Archive, idMap *record.IDMap, continueOnError bool) (*Result, error) {
	var items []workItem
	for sourceEntity, blocks := range archive.RelationshipData {
		for _, b := range blocks {
			items = append(items, workItem{sourceEntity: sourceEntity, block: b})
		}
	}

	parallelism := p.Pool.RecommendedTotalParallelism()
	if parallelism < 1 {
		parallelism = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var mu sync.Mutex
	result := &Result{}
	var firstErr error

	for _, item := range items {
		item := item
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			err := p.processItem(gctx, item, idMap, result, &mu)
			if err != nil && !continueOnError {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

func (p *Processor) processItem(ctx context.Context, item workItem, idMap *record.IDMap, result *Result, mu *sync.Mutex) error {
	sourceID, ok := idMap.Get(item.sourceEntity, item.block.SourceID)
	if !ok {
		return nil // unmapped source: the source record was never imported
	}

	var targets []record.Reference
	for _, targetID := range item.block.TargetIDs {
		mapped, ok := idMap.Get(item.block.TargetEntity, targetID)
		if !ok && item.block.TargetEntity == "role" && p.RoleLookup != nil {
			if exists, _ := p.RoleLookup.RoleExists(ctx, targetID); exists {
				mapped, ok = targetID, true
			}
		}
		if !ok {
			continue // unresolved role or other unmapped target: dropped, a known limitation
		}
		targets = append(targets, record.Reference{Entity: item.block.TargetEntity, ID: mapped})
	}
	if len(targets) == 0 {
		return nil
	}

	handle, err := p.Pool.Acquire(ctx)
	if err != nil {
		return p.recordFailure(result, mu, item, err.Error())
	}
	defer handle.Release()

	req := client.Request{
		Operation: client.OpAssociate,
		Entity:    item.sourceEntity,
		Associate: &client.AssociateRequest{
			Source:       record.Reference{Entity: item.sourceEntity, ID: sourceID},
			Relationship: p.Names.Resolve(item.block.Relationship),
			Targets:      targets,
		},
	}

	resp, execErr := handle.Execute(ctx, req)
	var fault *client.Fault
	if resp.Fault != nil {
		fault = resp.Fault
	}
	kind := client.Classify(execErr, fault)

	if kind == client.KindDuplicateKey {
		mu.Lock()
		result.Processed += len(targets)
		if p.Progress != nil {
			p.Progress.Record(len(targets), 0)
		}
		mu.Unlock()
		return nil
	}

	if execErr != nil {
		return p.recordFailure(result, mu, item, execErr.Error())
	}
	if fault != nil {
		return p.recordFailure(result, mu, item, fault.Message)
	}

	mu.Lock()
	result.Processed += len(targets)
	if p.Progress != nil {
		p.Progress.Record(len(targets), 0)
	}
	mu.Unlock()
	return nil
}

func (p *Processor) recordFailure(result *Result, mu *sync.Mutex, item workItem, message string) error {
	mu.Lock()
	result.Failures++
	result.Errors = append(result.Errors, &record.MigrationError{
		Entity:   item.sourceEntity,
		RecordID: item.block.SourceID,
		Message:  message,
	})
	if p.Progress != nil {
		p.Progress.Record(0, 1)
	}
	mu.Unlock()
	return &record.MigrationError{Entity: item.sourceEntity, RecordID: item.block.SourceID, Message: message}
}
