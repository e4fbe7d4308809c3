package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvmigrate/core/internal/archivefile"
	"github.com/dvmigrate/core/internal/client"
	"github.com/dvmigrate/core/internal/config"
	"github.com/dvmigrate/core/internal/deferred"
	"github.com/dvmigrate/core/internal/migrate"
	"github.com/dvmigrate/core/internal/progress"
	"github.com/dvmigrate/core/internal/redact"
	"github.com/dvmigrate/core/internal/relate"
)

var importCmd = &cobra.Command{
	Use:   "import <archive-dir>",
	Short: "Import an archived tenant into a target tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		if target == "" {
			return fmt.Errorf("--target is required")
		}

		archive, err := archivefile.Read(args[0])
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		rt, err := buildTargetRuntime(target)
		if err != nil {
			return err
		}

		opts := config.ImportOptions()
		if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
			opts.Mode = config.ModeFromString(mode)
		}
		if cmd.Flags().Changed("continue-on-error") {
			opts.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
		}
		if cmd.Flags().Changed("skip-missing-columns") {
			opts.SkipMissingColumns, _ = cmd.Flags().GetBool("skip-missing-columns")
		}
		if cmd.Flags().Changed("strip-owner-fields") {
			opts.StripOwnerFields, _ = cmd.Flags().GetBool("strip-owner-fields")
		}
		if cmd.Flags().Changed("tag") {
			opts.Bypass.Tag, _ = cmd.Flags().GetString("tag")
		}
		if cmd.Flags().Changed("bypass-custom-sync") {
			v, _ := cmd.Flags().GetBool("bypass-custom-sync")
			if v {
				opts.Bypass.CustomLogic |= client.BypassSync
			} else {
				opts.Bypass.CustomLogic &^= client.BypassSync
			}
		}
		if cmd.Flags().Changed("bypass-custom-async") {
			v, _ := cmd.Flags().GetBool("bypass-custom-async")
			if v {
				opts.Bypass.CustomLogic |= client.BypassAsync
			} else {
				opts.Bypass.CustomLogic &^= client.BypassAsync
			}
		}
		if cmd.Flags().Changed("suppress-callback-expander-job") {
			opts.Bypass.SuppressPowerAutomateFlows, _ = cmd.Flags().GetBool("suppress-callback-expander-job")
		}
		if cmd.Flags().Changed("suppress-duplicate-detection") {
			opts.Bypass.SuppressDuplicateDetection, _ = cmd.Flags().GetBool("suppress-duplicate-detection")
		}

		total := 0
		for _, recs := range archive.EntityData {
			total += len(recs)
		}

		names := relate.BuildNameCache(archive.Schema)
		imp := &migrate.Importer{
			Validator:     rt.validator,
			Executor:      rt.executor,
			Plugins:       rt.plugins,
			Deferred:      deferred.NewProcessor(rt.executor),
			Relationships: buildRelationshipProcessor(rt, names),
			Progress:      progress.NewTracker(total),
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		start := time.Now()
		result, err := imp.Import(ctx, archive, opts)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		slog.Info("import finished",
			"target", target,
			"success", result.Success,
			"tiers", result.TiersProcessed,
			"imported", result.RecordsImported,
			"updated", result.RecordsUpdated,
			"relationships", result.RelationshipsProcessed,
			"errors", len(result.Errors),
			"duration", time.Since(start),
		)
		for _, e := range result.Errors {
			slog.Debug("record error", "entity", e.Entity, "id", e.RecordID, "message", redact.Text(e.Message), "status", e.StatusCode)
		}
		if !result.Success {
			return fmt.Errorf("import completed with %d error(s)", len(result.Errors))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("target", "", "Target connection name from the connections file")
	importCmd.Flags().String("mode", "", "Write mode: create, update, or upsert (default from config)")
	importCmd.Flags().Bool("continue-on-error", false, "Continue past per-record failures within and across tiers")
	importCmd.Flags().Bool("skip-missing-columns", false, "Drop archive columns the target schema doesn't recognise instead of failing")
	importCmd.Flags().Bool("strip-owner-fields", false, "Drop owner/created-by/modified-by fields from every outgoing record")
	importCmd.Flags().String("tag", "", "Tag string echoed back verbatim on every batch request")
	importCmd.Flags().Bool("bypass-custom-sync", false, "Bypass synchronous custom logic (plugins, workflows) on write")
	importCmd.Flags().Bool("bypass-custom-async", false, "Bypass asynchronous custom logic on write")
	importCmd.Flags().Bool("suppress-callback-expander-job", false, "Suppress the callback registration expander job")
	importCmd.Flags().Bool("suppress-duplicate-detection", false, "Suppress duplicate detection rules on write")
}
