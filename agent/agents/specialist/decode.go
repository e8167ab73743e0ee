package specialist

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Models are loose with JSON types. These wrappers accept the shapes seen in
// practice and normalize them.

// looseString accepts a string, a number, a list or null.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = looseString(stringify(raw))
	return nil
}

// looseList accepts a list of values or a single comma separated string.
type looseList []string

func (l *looseList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out []string
	switch v := raw.(type) {
	case nil:
	case []any:
		for _, item := range v {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := stringify(v); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// looseArea accepts a number of hectares or text such as "15 hectares".
type looseArea float64

func (a *looseArea) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*a = looseArea(v)
	case string:
		area, _ := ParseArea(v)
		*a = looseArea(area)
	default:
		*a = 0
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

var (
	areaRe      = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)*)\s*(sq(?:uare)?\.?\s*m(?:et(?:er|re)s?)?\b|[a-z²]*)`)
	thousandsRe = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

const (
	hectaresPerAcre        = 0.4046856
	squareMetresPerHectare = 10000
)

// ParseArea reads a surface area in hectares from text. Acres and square
// metres are converted; a bare number is taken as hectares.
func ParseArea(text string) (float64, bool) {
	m := areaRe.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	v, ok := parseAmount(m[1])
	if !ok || v <= 0 {
		return 0, false
	}

	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "acre"):
		v *= hectaresPerAcre
	case strings.HasPrefix(unit, "sq") && strings.Contains(unit, "m"), unit == "m", unit == "m²":
		v /= squareMetresPerHectare
	}
	return v, true
}

// parseAmount accepts "15,000" and "1,500.5" as thousands groupings and a
// lone comma such as "2,5" as a decimal separator.
func parseAmount(raw string) (float64, bool) {
	switch {
	case thousandsRe.MatchString(raw):
		raw = strings.ReplaceAll(raw, ",", "")
	case strings.Count(raw, ",")+strings.Count(raw, ".") > 1:
		return 0, false
	default:
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}
