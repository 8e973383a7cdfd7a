// Package analysis turns a scan image into a persisted disease verdict: it
// prompts the vision model, parses the response, and stores the result.
package analysis

import (
	"fmt"

	"github.com/lansoscan/lansoscan-go/internal/conf"
	"github.com/lansoscan/lansoscan-go/internal/errors"
)

// responseSchema is the JSON object the model is instructed to return.
const responseSchema = `{
  "disease_detected": boolean,
  "disease_name": string,
  "confidence": number between 0.0 and 1.0,
  "severity": one of "none", "mild", "moderate", "severe",
  "recommendations": array of short actionable strings
}`

const fruitPrompt = `You are an expert plant pathologist specializing in lansones
(Lansium domesticum). Examine this photograph of lansones fruit and determine
whether it shows signs of disease such as anthracnose, fruit rot, scale insects,
or sooty mold.

Respond with ONLY a JSON object in exactly this shape:
%s

If the fruit appears healthy, set disease_detected to false, disease_name to an
empty string, and severity to "none". Base the confidence on how clearly the
visual evidence supports your verdict. Keep recommendations practical for a
smallholder farmer.`

const leafPrompt = `You are an expert plant pathologist specializing in lansones
(Lansium domesticum). Examine this photograph of lansones leaves and determine
whether they show signs of disease such as leaf spot, leaf blight, algal spot,
or pest damage.

Respond with ONLY a JSON object in exactly this shape:
%s

If the leaves appear healthy, set disease_detected to false, disease_name to an
empty string, and severity to "none". Base the confidence on how clearly the
visual evidence supports your verdict. Keep recommendations practical for a
smallholder farmer.`

// PromptFor returns the analysis prompt for the given scan subject.
func PromptFor(analysisType string) (string, error) {
	switch analysisType {
	case conf.TypeFruit:
		return fmt.Sprintf(fruitPrompt, responseSchema), nil
	case conf.TypeLeaf:
		return fmt.Sprintf(leafPrompt, responseSchema), nil
	default:
		return "", errors.Newf("unknown analysis type: %s", analysisType).
			Category(errors.CategoryValidation).
			Context("analysis_type", analysisType).
			Component("analysis").
			Build()
	}
}
