package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/conversational.txt
	conversationalRaw string

	//go:embed template/extraction.txt
	extractionRaw string

	//go:embed template/recommendation.txt
	recommendationRaw string

	//go:embed template/planning.txt
	planningRaw string

	//go:embed template/direct.txt
	directRaw string

	//go:embed template/combined.txt
	combinedRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Supervisor     string
	Conversational string
	Extraction     string
	Recommendation string
	Planning       string
	Direct         string
	// Combined replaces every role when the backend cannot signal intent.
	Combined string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Supervisor:     strings.TrimSpace(supervisorRaw),
		Conversational: strings.TrimSpace(conversationalRaw),
		Extraction:     strings.TrimSpace(extractionRaw),
		Recommendation: strings.TrimSpace(recommendationRaw),
		Planning:       strings.TrimSpace(planningRaw),
		Direct:         strings.TrimSpace(directRaw),
		Combined:       strings.TrimSpace(combinedRaw),
	}
}

// Missing lists the names of empty prompts.
func (p PromptSet) Missing() []string {
	var missing []string
	for name, v := range map[string]string{
		"supervisor":     p.Supervisor,
		"conversational": p.Conversational,
		"extraction":     p.Extraction,
		"recommendation": p.Recommendation,
		"planning":       p.Planning,
		"direct":         p.Direct,
		"combined":       p.Combined,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
