package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvmigrate/core/internal/archivefile"
	"github.com/dvmigrate/core/internal/planner"
)

var planCmd = &cobra.Command{
	Use:   "plan <archive-dir>",
	Short: "Print the tier plan an import would follow, without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := archivefile.Read(args[0])
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		plan := planner.Build(archive.Schema)
		for _, tier := range plan.Tiers {
			fmt.Printf("tier %d:\n", tier.Number)
			for _, entity := range tier.Entities {
				count := len(archive.EntityData[entity])
				deferredFields := plan.DeferredFields[entity]
				if len(deferredFields) > 0 {
					fmt.Printf("  %-30s %6d records   deferred: %v\n", entity, count, deferredFields)
				} else {
					fmt.Printf("  %-30s %6d records\n", entity, count)
				}
			}
		}
		return nil
	},
}
