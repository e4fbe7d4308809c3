package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvmigrate/core/internal/archivefile"
	"github.com/dvmigrate/core/internal/schema"
)

var validateCmd = &cobra.Command{
	Use:   "validate <archive-dir>",
	Short: "Check the archive against the target schema without writing any records",
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

		ctx := context.Background()
		for _, entity := range archive.Entities() {
			if _, err := rt.validator.Load(ctx, entity); err != nil {
				return fmt.Errorf("load metadata for %s: %w", entity, err)
			}
		}

		missing := rt.validator.DetectMissingColumns(archive)
		if len(missing) == 0 {
			fmt.Println("schema ok: every archived column exists on the target")
			return nil
		}

		for entity, cols := range missing {
			fmt.Printf("%s: missing columns %v\n", entity, cols)
		}
		return &schema.MismatchError{Missing: missing}
	},
}

func init() {
	validateCmd.Flags().String("target", "", "Target connection name from the connections file")
}
