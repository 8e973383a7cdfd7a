// Package history implements the scan history listing command.
package history

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/runtime"
)

// Command creates the history command for listing stored scans.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		limit        int
		offset       int
		analysisType string
		detected     string
		search       string
		ascending    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored scans",
		Long:  `List the scan history, optionally filtered by subject, verdict, or disease name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := runtime.Build(settings, runtime.Options{})
			if err != nil {
				return err
			}
			defer app.Close()

			scans, err := fetch(app.DS, limit, offset, analysisType, detected, search, ascending)
			if err != nil {
				return err
			}

			if len(scans) == 0 {
				fmt.Println("no scans found")
				return nil
			}
			printScans(scans)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of scans to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of scans to skip")
	cmd.Flags().StringVarP(&analysisType, "type", "t", "", "Filter by subject: fruit or leaf")
	cmd.Flags().StringVar(&detected, "detected", "", "Filter by verdict: true or false")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Search by disease name")
	cmd.Flags().BoolVar(&ascending, "asc", false, "Sort oldest first")

	return cmd
}

func fetch(ds datastore.Interface, limit, offset int, analysisType, detected, search string, ascending bool) ([]datastore.ScanRecord, error) {
	switch {
	case search != "":
		return ds.SearchScans(search, ascending, limit, offset)
	case analysisType != "":
		if !conf.ValidAnalysisType(analysisType) {
			return nil, fmt.Errorf("type must be %q or %q", conf.TypeFruit, conf.TypeLeaf)
		}
		return ds.GetScansByType(analysisType, ascending, limit, offset)
	case detected != "":
		switch detected {
		case "true":
			return ds.GetScansByVerdict(true, ascending, limit, offset)
		case "false":
			return ds.GetScansByVerdict(false, ascending, limit, offset)
		default:
			return nil, fmt.Errorf("detected must be true or false")
		}
	default:
		return ds.GetLastScans(limit, offset, ascending)
	}
}

func printScans(scans []datastore.ScanRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tID\tSUBJECT\tVERDICT\tCONFIDENCE")
	for i := range scans {
		scan := &scans[i]
		verdict := "healthy"
		if scan.DiseaseDetected {
			verdict = scan.DiseaseName
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\n",
			scan.CreatedAt.Format("2006-01-02 15:04"),
			scan.ID,
			scan.AnalysisType,
			verdict,
			scan.Confidence*100)
	}
	_ = w.Flush()
}
