// conf/validate.go

package conf

import (
	"fmt"
	"slices"
	"strconv"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateGeminiSettings(&settings.Gemini); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateAnalysisSettings(&settings.Analysis); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateGeminiSettings checks generation parameters. The API key may be empty
// here; it is required only when an analysis is actually attempted.
func validateGeminiSettings(gemini *GeminiSettings) error {
	if gemini.Model == "" {
		return fmt.Errorf("gemini model must not be empty")
	}
	if gemini.Endpoint == "" {
		return fmt.Errorf("gemini endpoint must not be empty")
	}
	if gemini.Temperature < 0 || gemini.Temperature > 2 {
		return fmt.Errorf("gemini temperature must be between 0.0 and 2.0, got %f", gemini.Temperature)
	}
	if gemini.TopP < 0 || gemini.TopP > 1 {
		return fmt.Errorf("gemini topp must be between 0.0 and 1.0, got %f", gemini.TopP)
	}
	if gemini.TopK < 0 {
		return fmt.Errorf("gemini topk must not be negative, got %d", gemini.TopK)
	}
	if gemini.MaxOutputTokens <= 0 {
		return fmt.Errorf("gemini maxoutputtokens must be positive, got %d", gemini.MaxOutputTokens)
	}
	if !slices.Contains(ValidSafetyThresholds, gemini.SafetyThreshold) {
		return fmt.Errorf("gemini safetythreshold %q is not a valid threshold", gemini.SafetyThreshold)
	}
	return nil
}

func validateAnalysisSettings(analysis *AnalysisSettings) error {
	if analysis.JPEGQuality < 1 || analysis.JPEGQuality > 100 {
		return fmt.Errorf("analysis jpegquality must be between 1 and 100, got %d", analysis.JPEGQuality)
	}
	if analysis.MaxDimension <= 0 {
		return fmt.Errorf("analysis maxdimension must be positive, got %d", analysis.MaxDimension)
	}
	if analysis.ThumbnailSize <= 0 {
		return fmt.Errorf("analysis thumbnailsize must be positive, got %d", analysis.ThumbnailSize)
	}
	if analysis.MinConfidence < 0 || analysis.MinConfidence > 1 {
		return fmt.Errorf("analysis minconfidence must be between 0.0 and 1.0, got %f", analysis.MinConfidence)
	}
	return nil
}

func validateOutputSettings(output *OutputSettings) error {
	if !output.SQLite.Enabled && !output.MySQL.Enabled {
		return fmt.Errorf("at least one database output must be enabled")
	}
	if output.SQLite.Enabled && output.SQLite.Path == "" {
		return fmt.Errorf("sqlite path must not be empty when sqlite is enabled")
	}
	if output.MySQL.Enabled {
		if output.MySQL.Host == "" || output.MySQL.Database == "" {
			return fmt.Errorf("mysql host and database must not be empty when mysql is enabled")
		}
		if output.MySQL.Port <= 0 || output.MySQL.Port > 65535 {
			return fmt.Errorf("mysql port %d is out of range", output.MySQL.Port)
		}
	}
	return nil
}

func validateWebServerSettings(webserver *WebServerSettings) error {
	if !webserver.Enabled {
		return nil
	}
	port, err := strconv.Atoi(webserver.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("webserver port must be a number between 1 and 65535, got %q", webserver.Port)
	}
	return nil
}
