package specialist

import (
	"regexp"
	"strings"

	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

var months = map[string]bool{
	"JANUARY": true, "FEBRUARY": true, "MARCH": true, "APRIL": true,
	"MAY": true, "JUNE": true, "JULY": true, "AUGUST": true,
	"SEPTEMBER": true, "OCTOBER": true, "NOVEMBER": true, "DECEMBER": true,
}

var (
	headingRe = regexp.MustCompile(`^\s*#{2,}\s*\**\s*([^#*:]+?)\s*\**\s*:?\s*\**\s*$`)
	bulletRe  = regexp.MustCompile(`^\s*[-*•]\s*\**\s*([^:*]+?)\s*\**\s*:\s*\**\s*(.*?)\s*$`)
)

type calendarSection int

const (
	sectionNone calendarSection = iota
	sectionMonth
	sectionAdditional
)

// ParseCalendar reads the "###MONTH:" calendar format the planning prompt
// asks for. It returns nil when no month or summary entry is found.
func ParseCalendar(text string) *statex.PlanningData {
	plan := &statex.PlanningData{}
	section := sectionNone

	for _, line := range strings.Split(text, "\n") {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			name := strings.ToUpper(strings.TrimSpace(m[1]))
			switch {
			case months[name]:
				plan.Months = append(plan.Months, statex.MonthPlan{Month: name})
				section = sectionMonth
			case strings.Contains(name, "ADDITIONAL"):
				section = sectionAdditional
			default:
				section = sectionNone
			}
			continue
		}

		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}

		switch section {
		case sectionMonth:
			setMonthField(&plan.Months[len(plan.Months)-1], key, value)
		case sectionAdditional:
			setSummaryField(plan, key, value)
		}
	}

	if plan.IsEmpty() {
		return nil
	}
	return plan
}

func setMonthField(mp *statex.MonthPlan, key, value string) {
	switch {
	case strings.HasPrefix(key, "soil"):
		mp.SoilPreparation = value
	case strings.HasPrefix(key, "planting"):
		mp.Planting = value
	case strings.HasPrefix(key, "irrigation"):
		mp.Irrigation = value
	case strings.HasPrefix(key, "harvest"):
		mp.Harvest = value
	case strings.HasPrefix(key, "special"):
		mp.SpecialConsiderations = value
	}
}

func setSummaryField(plan *statex.PlanningData, key, value string) {
	switch {
	case strings.HasPrefix(key, "crop rotation"):
		plan.CropRotation = value
	case strings.HasPrefix(key, "resource"):
		plan.ResourceAllocation = value
	case strings.HasPrefix(key, "risk"):
		plan.RiskMitigation = value
	case strings.HasPrefix(key, "economic"):
		plan.EconomicConsiderations = value
	}
}
