package specialist

import (
	"testing"
	"time"

	statex "github.com/tanpawarit/Chative-Farm-Advisor/agent/state"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const sampleCalendar = `##ANNUAL FARMING CALENDAR

###JANUARY:
- Soil preparation: Add compost around the trees
- Planting: Plant new citrus saplings
- Irrigation: Drip twice a week
- Harvest: Oranges
- Special considerations: Watch for frost

### **FEBRUARY:**
- **Soil preparation:** Light tillage
- Irrigation: Drip twice a week, more if dry
- Harvest: Late mandarins

##ADDITIONAL PLANNING ELEMENTS
- Crop rotation recommendations: Legumes between rows
- Resource allocation: 40% of water in summer
- Risk mitigation: Windbreaks against the sirocco
- Economic considerations: Expect 25 t/ha`

func TestParseCalendar(t *testing.T) {
	t.Parallel()

	plan := ParseCalendar(sampleCalendar)
	if plan == nil {
		t.Fatalf("ParseCalendar() = nil")
	}
	if len(plan.Months) != 2 {
		t.Fatalf("months = %d, want 2", len(plan.Months))
	}

	jan := plan.Months[0]
	if jan.Month != "JANUARY" || jan.Planting != "Plant new citrus saplings" || jan.SpecialConsiderations != "Watch for frost" {
		t.Fatalf("January = %+v", jan)
	}
	feb := plan.Months[1]
	if feb.Month != "FEBRUARY" || feb.SoilPreparation != "Light tillage" || feb.Irrigation != "Drip twice a week, more if dry" {
		t.Fatalf("February = %+v", feb)
	}
	if plan.CropRotation != "Legumes between rows" || plan.EconomicConsiderations != "Expect 25 t/ha" {
		t.Fatalf("summary = %+v", plan)
	}
}

func TestParseCalendarWithoutHeadings(t *testing.T) {
	t.Parallel()

	if plan := ParseCalendar("Plant olives in autumn and irrigate in summer."); plan != nil {
		t.Fatalf("ParseCalendar() = %+v, want nil", plan)
	}
}

func TestParseArea(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"15 hectares", 15, true},
		{"2,5 ha", 2.5, true},
		{"10 acres", 4.046856, true},
		{"5000 m2", 0.5, true},
		{"15,000 sq m", 1.5, true},
		{"15,000 m²", 1.5, true},
		{"15 sq m", 0.0015, true},
		{"15,000 square meters of olives", 1.5, true},
		{"20000 sqm", 2, true},
		{"2,500 m²", 0.25, true},
		{"1,250.5 acres", 506.0593, true},
		{"1,2,3 ha", 0, false},
		{"big", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseArea(tc.in)
		if ok != tc.ok || (ok && (got < tc.want-0.0001 || got > tc.want+0.0001)) {
			t.Fatalf("ParseArea(%q) = %v, %v, want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMissingFarmMessage(t *testing.T) {
	t.Parallel()

	got := MissingFarmMessage(statex.FarmFacts{})
	want := "I can't give a reliable recommendation yet because I don't have your farm details on file. Please tell me your location, the surface area in hectares, the soil type and the crops you grow or plan to grow."
	if got != want {
		t.Fatalf("MissingFarmMessage() = %q, want %q", got, want)
	}
}
