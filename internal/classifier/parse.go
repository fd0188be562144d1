package classifier

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/stewardbot/steward/internal/types"
)

// Pre-compiled patterns for cleaning up model output. Models wrap JSON in
// markdown code fences or surround it with prose more often than they
// should.
var (
	codeFenceRegex  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	jsonObjectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// rawClassification is the JSON contract with the model.
type rawClassification struct {
	Labels               []string `json:"labels"`
	LabelConfidence      float64  `json:"label_confidence"`
	NeedsClarification   bool     `json:"needs_clarification"`
	MissingInfo          []string `json:"missing_info"`
	ClarificationMessage *string  `json:"clarification_message"`
	ImplementationHints  []string `json:"implementation_hints"`
	OverallConfidence    float64  `json:"overall_confidence"`
	Reasoning            string   `json:"reasoning"`
}

// parseClassification turns model output into a ClassificationResult.
// Strategy sequence: direct parse, code-fence contents, then the outermost
// JSON object embedded in surrounding prose. Returns ok=false when every
// strategy fails; the caller substitutes a neutral result.
func parseClassification(text string, issueNumber int) (types.ClassificationResult, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return types.ClassificationResult{}, false
	}

	candidates := []string{trimmed}
	if m := codeFenceRegex.FindStringSubmatch(trimmed); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := jsonObjectRegex.FindString(trimmed); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		var raw rawClassification
		if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
			continue
		}
		return resultFromRaw(raw, issueNumber, candidate), true
	}
	return types.ClassificationResult{}, false
}

func resultFromRaw(raw rawClassification, issueNumber int, source string) types.ClassificationResult {
	result := types.ClassificationResult{
		IssueNumber:         issueNumber,
		SuggestedLabels:     raw.Labels,
		LabelConfidence:     clamp01(raw.LabelConfidence),
		NeedsClarification:  raw.NeedsClarification,
		MissingInfo:         raw.MissingInfo,
		ImplementationHints: raw.ImplementationHints,
		OverallConfidence:   clamp01(raw.OverallConfidence),
		Raw:                 json.RawMessage(source),
	}
	if raw.ClarificationMessage != nil {
		result.ClarificationMessage = strings.TrimSpace(*raw.ClarificationMessage)
	}
	return result
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
