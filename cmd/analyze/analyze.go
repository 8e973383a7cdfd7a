// Package analyze implements the one-shot image analysis command.
package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/runtime"
)

// Command creates the analyze command for scanning a single image.
func Command(settings *conf.Settings) *cobra.Command {
	var analysisType string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze [image file]",
		Short: "Analyze a lansones image for disease",
		Long:  `Analyze a photograph of lansones fruit or leaves and store the verdict in the scan history.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !conf.ValidAnalysisType(analysisType) {
				return fmt.Errorf("type must be %q or %q", conf.TypeFruit, conf.TypeLeaf)
			}

			app, err := runtime.Build(settings, runtime.Options{Client: true})
			if err != nil {
				return err
			}
			defer app.Close()

			record, err := app.Analyzer.AnalyzeFile(cmd.Context(), args[0], analysisType)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(record)
			}
			printRecord(record)
			return nil
		},
	}

	cmd.Flags().StringVarP(&analysisType, "type", "t", conf.TypeFruit, "Scan subject: fruit or leaf")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw scan record as JSON")

	return cmd
}

func printRecord(record *datastore.ScanRecord) {
	verdict := "healthy"
	if record.DiseaseDetected {
		verdict = fmt.Sprintf("%s (%s)", record.DiseaseName, record.Severity)
	}

	fmt.Printf("Scan ID:     %s\n", record.ID)
	fmt.Printf("Subject:     %s\n", record.AnalysisType)
	fmt.Printf("Verdict:     %s\n", verdict)
	fmt.Printf("Confidence:  %.0f%%\n", record.Confidence*100)
	if record.Heuristic {
		fmt.Println("Note:        verdict derived from free-form model text")
	}
	if recs := record.GetRecommendations(); len(recs) > 0 {
		fmt.Printf("Recommendations:\n  - %s\n", strings.Join(recs, "\n  - "))
	}
	fmt.Printf("Processed in %d ms by %s\n", record.ProcessingMS, record.ModelVersion)
}
