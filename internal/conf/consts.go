// conf/consts.go hard coded constants
package conf

// RotationType defines the log rotation strategy.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// Analysis types for scan subjects.
const (
	TypeFruit = "fruit"
	TypeLeaf  = "leaf"
)

// Safety threshold values accepted by the Gemini API.
var ValidSafetyThresholds = []string{
	"BLOCK_NONE",
	"BLOCK_ONLY_HIGH",
	"BLOCK_MEDIUM_AND_ABOVE",
	"BLOCK_LOW_AND_ABOVE",
}

// ValidAnalysisType reports whether t names a supported scan subject.
func ValidAnalysisType(t string) bool {
	return t == TypeFruit || t == TypeLeaf
}
