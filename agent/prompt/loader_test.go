package prompt

import (
	"strings"
	"testing"
)

func TestLoadPromptSetHasEveryRole(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if missing := set.Missing(); len(missing) != 0 {
		t.Fatalf("missing prompts: %v", missing)
	}
}

func TestSupervisorPromptNamesEveryLabel(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	for _, label := range []string{"conversational", "data_extraction", "recommendation", "planning", "direct_response"} {
		if !strings.Contains(set.Supervisor, label) {
			t.Fatalf("supervisor prompt does not mention %q", label)
		}
	}
}

func TestPlanningPromptUsesMonthHeadings(t *testing.T) {
	t.Parallel()

	if !strings.Contains(LoadPromptSet().Planning, "###JANUARY:") {
		t.Fatalf("planning prompt must show the ###MONTH: heading format")
	}
}
