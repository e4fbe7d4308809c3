// Package migrate is the top-level tiered importer: it turns an archive
// and a target schema into tier-ordered writes, then deferred-field and
// relationship passes, composing the whole run into a single result.
package migrate

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dvmigrate/core/internal/bulk"
	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/deferred"
	"github.com/dvmigrate/core/internal/planner"
	"github.com/dvmigrate/core/internal/pluginsteps"
	"github.com/dvmigrate/core/internal/progress"
	"github.com/dvmigrate/core/internal/record"
	"github.com/dvmigrate/core/internal/relate"
	"github.com/dvmigrate/core/internal/schema"
)

// ownerFields are stripped from every outgoing record when
// Options.StripOwnerFields is set.
var ownerFields = map[string]bool{
	"ownerid":            true,
	"createdby":          true,
	"modifiedby":         true,
	"createdonbehalfby":  true,
	"modifiedonbehalfby": true,
	"owninguser":         true,
	"owningteam":         true,
	"owningbusinessunit": true,
}

// Options configures a single import run.
type Options struct {
	Mode      record.Mode
	BatchSize int

	// UseBulkApis false routes every entity through per-record execution
	// instead of batched bulk calls.
	UseBulkApis bool

	// MaxParallelEntities bounds how many entities within one tier run
	// concurrently. <= 0 means unbounded (one goroutine per entity).
	MaxParallelEntities int

	ContinueOnError    bool
	SkipMissingColumns bool
	StripOwnerFields   bool

	RespectDisablePluginsSetting bool

	// UserMappings remaps a source systemuser/team id directly to its
	// target-tenant id, independent of the archive's own id map.
	UserMappings map[string]string
	// CurrentUserID is substituted for an unmapped systemuser/team
	// reference when FallbackToCurrentUser is set.
	CurrentUserID         string
	FallbackToCurrentUser bool

	Bypass client.BypassOptions
}

// EntityImportResult is one entity's outcome within a tier.
type EntityImportResult struct {
	Entity  string
	Success int
	Failure int
	Errors  []*record.MigrationError
}

// ImportResult is the whole run's outcome.
type ImportResult struct {
	Success                bool
	TiersProcessed         int
	RecordsImported        int
	RecordsUpdated         int
	RelationshipsProcessed int
	Duration               time.Duration
	EntityResults          []EntityImportResult
	Errors                 []*record.MigrationError
}

// Importer wires together schema validation, the tier planner, the bulk
// executor, and the deferred-field and relationship passes into one
// import operation.
type Importer struct {
	Validator     *schema.Validator
	Executor      *bulk.Executor
	Plugins       *pluginsteps.Manager
	Deferred      *deferred.Processor
	Relationships *relate.Processor
	Progress      *progress.Tracker
}

// NewImporter builds an importer from its collaborators. Plugins,
// Deferred, Relationships, and Progress may be left nil on the returned
// value to skip that stage.
func NewImporter(validator *schema.Validator, executor *bulk.Executor) *Importer {
	return &Importer{Validator: validator, Executor: executor}
}

// Import runs the full import: schema validation, tier planning,
// plugin-step suspension, tier-ordered writes, the deferred-field pass,
// and the relationship pass.
//
// Failure semantics: per-record errors always accumulate into the
// result rather than aborting. When ContinueOnError is false, a tier
// that produced any per-record failure is still finished in full, but
// no further tier begins — the run stops at that tier boundary. The
// deferred-field and relationship passes are skipped if the context was
// cancelled before they could start; plugin steps are re-enabled
// unconditionally, using an uncancellable context, regardless of how
// the run ended.
func (im *Importer) Import(ctx context.Context, archive *record.Archive, opts Options) (*ImportResult, error) {
	start := time.Now()

	for _, entity := range archive.Entities() {
		if _, err := im.Validator.Load(ctx, entity); err != nil {
			return nil, err
		}
	}
	missing := im.Validator.DetectMissingColumns(archive)
	if len(missing) > 0 && !opts.SkipMissingColumns {
		return nil, &schema.MismatchError{Missing: missing}
	}

	plan := planner.Build(archive.Schema)

	if opts.RespectDisablePluginsSetting && im.Plugins != nil {
		var codes []int
		for _, es := range archive.Schema.Entities {
			if es.DisablePlugins && es.ObjectTypeCode != 0 {
				codes = append(codes, es.ObjectTypeCode)
			}
		}
		if err := im.Plugins.Disable(ctx, codes); err != nil {
			return nil, err
		}
	}
	defer func() {
		if im.Plugins != nil {
			_ = im.Plugins.Enable(context.Background())
		}
	}()

	result := &ImportResult{}
	idMap := record.NewIDMap()
	cancelled := false
	aborted := false

	for _, tier := range plan.Tiers {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		entityResults := im.runTier(ctx, archive, tier, plan, opts, missing, idMap)
		result.TiersProcessed++
		result.EntityResults = append(result.EntityResults, entityResults...)

		for _, er := range entityResults {
			result.RecordsImported += er.Success
			result.Errors = append(result.Errors, er.Errors...)
			if er.Failure > 0 && !opts.ContinueOnError {
				aborted = true
			}
		}

		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if aborted {
			break
		}
	}

	cancelled = cancelled || ctx.Err() != nil
	if !cancelled && im.Deferred != nil {
		deferredResults, err := im.Deferred.Process(ctx, archive, plan, idMap, opts.Bypass)
		if err == nil {
			for _, r := range deferredResults {
				result.RecordsUpdated += r.Success
				result.Errors = append(result.Errors, r.Errors...)
			}
		} else {
			result.Errors = append(result.Errors, &record.MigrationError{Message: err.Error()})
		}
	}

	cancelled = cancelled || ctx.Err() != nil
	if !cancelled && im.Relationships != nil {
		relResult, err := im.Relationships.Process(ctx, archive, idMap, opts.ContinueOnError)
		if relResult != nil {
			result.RelationshipsProcessed = relResult.Processed
			result.Errors = append(result.Errors, relResult.Errors...)
		}
		if err != nil && relResult == nil {
			result.Errors = append(result.Errors, &record.MigrationError{Message: err.Error()})
		}
	}

	result.Duration = time.Since(start)
	result.Success = !cancelled && (opts.ContinueOnError || len(result.Errors) == 0)
	return result, nil
}

// runTier processes every entity in tier concurrently, bounded by
// opts.MaxParallelEntities.
func (im *Importer) runTier(ctx context.Context, archive *record.Archive, tier planner.Tier, plan *planner.Plan, opts Options, missing map[string][]string, idMap *record.IDMap) []EntityImportResult {
	limit := opts.MaxParallelEntities
	if limit <= 0 {
		limit = len(tier.Entities)
	}
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]EntityImportResult, len(tier.Entities))
	for i, entity := range tier.Entities {
		i, entity := i, entity
		g.Go(func() error {
			results[i] = im.runEntity(gctx, archive, entity, plan, opts, missing, idMap)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]EntityImportResult, 0, len(results))
	for _, r := range results {
		if r.Entity == "" {
			continue // no archived records for this entity: skipped
		}
		out = append(out, r)
	}
	return out
}

// runEntity prepares and writes every archived record for entity, then
// records successfully-written ids into idMap.
func (im *Importer) runEntity(ctx context.Context, archive *record.Archive, entity string, plan *planner.Plan, opts Options, missing map[string][]string, idMap *record.IDMap) EntityImportResult {
	records := archive.EntityData[entity]
	if len(records) == 0 {
		return EntityImportResult{}
	}

	metadata, _ := im.Validator.Load(ctx, entity)

	if !opts.UseBulkApis {
		im.Executor.ForcePerRecord(entity)
	}

	prepared := make([]*record.Record, len(records))
	for i, r := range records {
		prepared[i] = prepareRecord(r, entity, plan.DeferredFields[entity], missing[entity], metadata, opts, idMap)
	}

	var res *bulk.BulkResult
	var err error
	switch opts.Mode {
	case record.ModeCreate:
		res, err = im.Executor.CreateMultiple(ctx, entity, prepared, opts.Bypass)
	case record.ModeUpdate:
		res, err = im.Executor.UpdateMultiple(ctx, entity, prepared, opts.Bypass)
	default:
		res, err = im.Executor.UpsertMultiple(ctx, entity, prepared, opts.Bypass)
	}
	if err != nil {
		errs := make([]*record.MigrationError, len(prepared))
		for i, r := range prepared {
			errs[i] = &record.MigrationError{Entity: entity, RecordID: r.ID, Message: err.Error()}
		}
		return EntityImportResult{Entity: entity, Failure: len(prepared), Errors: errs}
	}

	failed := make(map[string]bool, len(res.Errors))
	for _, e := range res.Errors {
		failed[e.RecordID] = true
	}
	for _, r := range records {
		if !failed[r.ID] {
			idMap.Set(entity, r.ID, r.ID)
		}
	}

	if im.Progress != nil {
		im.Progress.Record(res.Success, res.Failure)
	}

	return EntityImportResult{Entity: entity, Success: res.Success, Failure: res.Failure, Errors: res.Errors}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// prepareRecord builds the outgoing record for one archived row: carries
// the primary key as <entity>id, drops deferred and missing-column
// attributes and anything the target's field validity excludes, strips
// owner fields when asked, remaps reference values through the id map
// (with the user-mapping/current-user fallback for systemuser and
// team), and forces team.isdefault to false.
func prepareRecord(r *record.Record, entity string, deferredFields, missingCols []string, metadata record.EntityValidity, opts Options, idMap *record.IDMap) *record.Record {
	deferredSet := toSet(deferredFields)
	missingSet := toSet(missingCols)

	out := record.NewRecord(entity, r.ID)
	if r.ID != "" {
		out.Set(entity+"id", record.NewString(r.ID))
	}

	r.Each(func(name string, v record.Value) {
		if name == entity+"id" {
			return
		}
		if deferredSet[name] || missingSet[name] {
			return
		}
		if !record.ShouldIncludeField(name, opts.Mode, metadata) {
			return
		}
		if opts.StripOwnerFields && ownerFields[name] {
			return
		}
		if v.IsReference() {
			v = remapReference(v, opts, idMap)
		}
		out.Set(name, v)
	})

	if entity == "team" {
		out.Set("isdefault", record.NewBool(false))
	}

	return out
}

// remapReference resolves a reference value through (in order) the
// explicit user mapping, the current-user fallback, and the id map. A
// reference this importer cannot resolve is left unchanged so the
// target can reject or accept it on its own terms.
func remapReference(v record.Value, opts Options, idMap *record.IDMap) record.Value {
	ref := v.Ref

	if ref.Entity == "systemuser" || ref.Entity == "team" {
		if mapped, ok := opts.UserMappings[ref.ID]; ok {
			return record.NewReference(ref.Entity, mapped)
		}
		if _, ok := idMap.Get(ref.Entity, ref.ID); !ok && opts.FallbackToCurrentUser && opts.CurrentUserID != "" {
			return record.NewReference(ref.Entity, opts.CurrentUserID)
		}
	}

	if mapped, ok := idMap.Get(ref.Entity, ref.ID); ok {
		return record.NewReference(ref.Entity, mapped)
	}
	return v
}
