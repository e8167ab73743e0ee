// Package payload locates the JSON object a model embeds in free text.
//
// Only the longest balanced brace span is considered. Braces inside JSON
// string literals do not count toward the balance.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrUnparsed = errors.New("no structured payload")

type Result struct {
	Parsed bool
	Object map[string]any
	// Raw is the brace span as it appeared in the text; Start and End bound
	// it. They are kept for an invalid span too, so Strip can remove it.
	Raw   string
	Start int
	End   int
	// Reason is set when Parsed is false.
	Reason string
}

func Unparsed(reason string) Result {
	return Result{Reason: reason, Start: -1, End: -1}
}

// Extract returns the parsed object for the longest balanced {...} span.
func Extract(text string) Result {
	start, end, ok := longestSpan(text)
	if !ok {
		return Unparsed("no balanced braces")
	}

	raw := text[start:end]
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		res := Unparsed(fmt.Sprintf("invalid json: %v", err))
		res.Raw, res.Start, res.End = raw, start, end
		return res
	}

	return Result{Parsed: true, Object: obj, Raw: raw, Start: start, End: end}
}

// Decode unmarshals a parsed payload into out.
func Decode(res Result, out any) error {
	if !res.Parsed {
		return fmt.Errorf("%w: %s", ErrUnparsed, res.Reason)
	}
	if err := json.Unmarshal([]byte(res.Raw), out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnparsed, err)
	}
	return nil
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*$")
var closingFenceRe = regexp.MustCompile("(?s)^\\s*```")

// Strip removes the payload span, and a surrounding markdown code fence, from
// text. The remainder is trimmed; it is empty when the text held only JSON.
func Strip(text string, res Result) string {
	if res.Start < 0 || res.End > len(text) || res.Start >= res.End {
		return strings.TrimSpace(text)
	}

	before := text[:res.Start]
	after := text[res.End:]
	if loc := fenceRe.FindStringIndex(before); loc != nil {
		if end := closingFenceRe.FindStringIndex(after); end != nil {
			before = before[:loc[0]]
			after = after[end[1]:]
		}
	}

	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)
	switch {
	case before == "":
		return after
	case after == "":
		return before
	default:
		return before + "\n\n" + after
	}
}

func longestSpan(text string) (int, int, bool) {
	bestStart, bestEnd := -1, -1
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && i+1-start > bestEnd-bestStart {
				bestStart, bestEnd = start, i+1
			}
		}
	}

	return bestStart, bestEnd, bestStart >= 0
}
