// Package cleanup implements the orphaned image sweep command.
package cleanup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/runtime"
)

// Command creates the cleanup command for removing image files no scan
// record references.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove orphaned image files",
		Long:  `Scan the image directories and delete files that no stored scan references.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings, runtime.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.SweepOrphans(settings.Cleanup.DryRun)
			if err != nil {
				return err
			}

			fmt.Println(result)
			if settings.Cleanup.DryRun {
				for _, orphan := range result.Orphans {
					fmt.Printf("  would delete %s\n", orphan)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&settings.Cleanup.DryRun, "dry-run", false, "Report orphans without deleting them")

	return cmd
}
