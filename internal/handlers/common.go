// Package handlers contains the capability handlers registered with the
// action registry.
package handlers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/avvvet/chatbuddy/internal/memory"
	"github.com/avvvet/chatbuddy/internal/models"
)

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// entities returns the entities of the session's current intent, never nil.
func entities(state *memory.ConversationState) map[string]any {
	if state.CurrentIntent == nil || state.CurrentIntent.Entities == nil {
		return map[string]any{}
	}
	return state.CurrentIntent.Entities
}

func intentKind(state *memory.ConversationState) models.IntentKind {
	if state.CurrentIntent == nil {
		return models.IntentGeneralConversation
	}
	return state.CurrentIntent.Kind
}

// stringValue renders scalar values as strings; other types yield "".
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case fmt.Stringer:
		return t.String()
	}
	return ""
}

// stringList accepts a string, a []string or a []any of strings.
func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := stringValue(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstString(sources ...any) string {
	for _, src := range sources {
		if s := stringValue(src); s != "" {
			return s
		}
	}
	return ""
}

// parsePriceRange understands numeric budgets, "under 1000", "over 500",
// "$500-$1000" and {"min": .., "max": ..} maps.
func parsePriceRange(v any) (min, max *float64) {
	switch t := v.(type) {
	case float64:
		return nil, &t
	case int:
		f := float64(t)
		return nil, &f
	case map[string]any:
		if f, ok := t["min"].(float64); ok {
			min = &f
		}
		if f, ok := t["max"].(float64); ok {
			max = &f
		}
		return min, max
	case []any:
		if len(t) == 2 {
			lo, ok1 := t[0].(float64)
			hi, ok2 := t[1].(float64)
			if ok1 && ok2 {
				return &lo, &hi
			}
		}
		return nil, nil
	case string:
		return parsePriceText(t)
	}
	return nil, nil
}

func parsePriceText(s string) (min, max *float64) {
	lower := strings.ToLower(strings.ReplaceAll(s, ",", ""))
	numbers := numberPattern.FindAllString(lower, -1)
	if len(numbers) == 0 {
		return nil, nil
	}
	values := make([]float64, 0, len(numbers))
	for _, n := range numbers {
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return nil, nil
	}

	switch {
	case strings.Contains(lower, "over") || strings.Contains(lower, "above"):
		return &values[0], nil
	case strings.Contains(lower, "-") && len(values) >= 2:
		return &values[0], &values[1]
	default:
		return nil, &values[0]
	}
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("$%.2f", *p)
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// containsWord matches whole words only, so "hi" does not match "within".
func containsWord(text string, words ...string) bool {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		for _, w := range words {
			if f == w {
				return true
			}
		}
	}
	return false
}
