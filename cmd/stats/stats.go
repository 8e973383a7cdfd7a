// Package stats implements the aggregate statistics command.
package stats

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/runtime"
)

// Command creates the stats command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scan statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings, runtime.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			scanStats, err := app.DS.GetStats()
			if err != nil {
				return err
			}
			fileStats, err := app.Images.GetStats()
			if err != nil {
				return err
			}

			fmt.Printf("Total scans:        %d\n", scanStats.TotalScans)
			fmt.Printf("  diseased:         %d\n", scanStats.DiseasedScans)
			fmt.Printf("  healthy:          %d\n", scanStats.HealthyScans)
			fmt.Printf("  fruit / leaf:     %d / %d\n", scanStats.FruitScans, scanStats.LeafScans)
			fmt.Printf("Average confidence: %.0f%%\n", scanStats.AverageConfidence*100)
			fmt.Printf("Stored files:       %d (%s)\n",
				fileStats.ImageCount+fileStats.ThumbnailCount,
				formatBytes(fileStats.TotalBytes))
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
