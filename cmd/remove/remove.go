// Package remove implements scan deletion commands.
package remove

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/runtime"
)

// Command creates the remove command for deleting scans and their images.
func Command(settings *conf.Settings) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "remove [scan id]",
		Short: "Delete a scan and its image files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("provide exactly one scan id, or --all")
			}

			app, err := runtime.Build(settings, runtime.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			if all {
				deleted, err := app.DS.DeleteAll()
				if err != nil {
					return err
				}
				result, err := app.SweepOrphans(false)
				if err != nil {
					return err
				}
				fmt.Printf("deleted %d scans and %d files\n", deleted, result.FilesDeleted)
				return nil
			}

			id := args[0]
			record, err := app.DS.Get(id)
			if err != nil {
				return err
			}
			if err := app.Images.Delete(record.ImagePath, record.ThumbnailPath); err != nil {
				return err
			}
			if err := app.DS.Delete(id); err != nil {
				return err
			}
			fmt.Printf("deleted scan %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every scan")

	return cmd
}
