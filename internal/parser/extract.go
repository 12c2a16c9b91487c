package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marketsnap/marketsnap/internal/models"
)

// extractJSON finds the first JSON document inside a free-form response.
// Fenced code blocks are tried first, then a balanced-brace scan over the
// whole text. Surrounding prose is tolerated; a response with no valid JSON
// is not.
func extractJSON(text string) (json.RawMessage, error) {
	for _, fence := range []string{"```json", "```"} {
		if idx := strings.Index(text, fence); idx != -1 {
			start := idx + len(fence)
			if end := strings.Index(text[start:], "```"); end != -1 {
				candidate := strings.TrimSpace(text[start : start+end])
				if json.Valid([]byte(candidate)) {
					return json.RawMessage(candidate), nil
				}
			}
		}
	}

	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if candidate := firstBalanced(text); candidate != "" {
		return json.RawMessage(candidate), nil
	}

	return nil, fmt.Errorf("no valid JSON document in response")
}

// firstBalanced returns the first balanced {...} or [...] span that parses
// as JSON, or "". String literals and escapes are honored so braces inside
// market titles do not break the scan.
func firstBalanced(text string) string {
	for start := 0; start < len(text); start++ {
		open := text[start]
		if open != '{' && open != '[' {
			continue
		}
		var close byte = '}'
		if open == '[' {
			close = ']'
		}

		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			ch := text[i]
			if escaped {
				escaped = false
				continue
			}
			switch {
			case ch == '\\' && inString:
				escaped = true
			case ch == '"':
				inString = !inString
			case inString:
			case ch == open:
				depth++
			case ch == close:
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate
					}
					i = len(text) // abandon this start position
				}
			}
		}
	}
	return ""
}

// fieldAliases maps canonical record fields to the near-miss names the
// service has been observed to emit. Lookup is case- and separator-
// insensitive on top of these.
var fieldAliases = map[string][]string{
	"title":       {"market_title", "title", "question", "name"},
	"description": {"description", "summary"},
	"options":     {"options", "outcomes", "choices"},
	"prices":      {"current_prices", "prices", "odds"},
	"odds":        {"odds", "price", "probability", "value"},
	"optionName":  {"name", "outcome", "option", "label"},
	"volume":      {"volume_24h", "volume24h", "volume_24hr", "volume"},
	"endDate":     {"end_date", "enddate", "close_date", "resolution_date"},
	"groupTitle":  {"group_title", "grouptitle", "group"},
	"category":    {"category", "topic"},
	"markets":     {"markets", "submarkets", "records"},
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(k))
}

// lookup resolves a canonical field against a decoded object via the alias
// table.
func lookup(obj map[string]any, canonical string) (any, bool) {
	aliases := fieldAliases[canonical]
	normalized := make(map[string]any, len(obj))
	for k, v := range obj {
		normalized[normalizeKey(k)] = v
	}
	for _, alias := range aliases {
		if v, ok := normalized[normalizeKey(alias)]; ok {
			return v, true
		}
	}
	return nil, false
}

// decodeRecords converts the extracted JSON payload into market records.
// Both the grouped and standalone shapes of the extraction contract are
// accepted; group objects are flattened with GroupTitle carried onto each
// contained record. A payload without a recognizable markets array is a
// data error, not a transient one.
func decodeRecords(raw json.RawMessage) ([]models.MarketRecord, error) {
	var top any
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	var entries []any
	switch v := top.(type) {
	case map[string]any:
		m, ok := lookup(v, "markets")
		if !ok {
			return nil, fmt.Errorf("payload has no markets array")
		}
		entries, ok = m.([]any)
		if !ok {
			return nil, fmt.Errorf("markets is not an array")
		}
	case []any:
		entries = v
	default:
		return nil, fmt.Errorf("payload is neither object nor array")
	}

	var records []models.MarketRecord
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}

		// Group object: a group_title plus a nested markets array.
		if sub, ok := lookup(obj, "markets"); ok {
			var groupTitle string
			if v, ok := lookup(obj, "groupTitle"); ok {
				groupTitle, _ = asString(v)
			}
			if subEntries, ok := sub.([]any); ok {
				for _, se := range subEntries {
					seObj, ok := se.(map[string]any)
					if !ok {
						continue
					}
					rec := buildRecord(seObj)
					if rec.GroupTitle == "" {
						rec.GroupTitle = groupTitle
					}
					records = append(records, rec)
				}
			}
			continue
		}

		records = append(records, buildRecord(obj))
	}

	return records, nil
}

// buildRecord maps one decoded object to a MarketRecord. It does not
// validate; the engine validates and drops afterwards so every rejection can
// be logged with its reason.
func buildRecord(obj map[string]any) models.MarketRecord {
	var rec models.MarketRecord

	if v, ok := lookup(obj, "title"); ok {
		rec.Title, _ = asString(v)
	}
	if v, ok := lookup(obj, "description"); ok {
		rec.Description, _ = asString(v)
	}
	if v, ok := lookup(obj, "groupTitle"); ok {
		rec.GroupTitle, _ = asString(v)
	}
	if v, ok := lookup(obj, "category"); ok {
		rec.Category, _ = asString(v)
	}

	if v, ok := lookup(obj, "volume"); ok {
		if f, ok := floatValue(v); ok {
			rec.Volume24h = f
		}
	}

	if v, ok := lookup(obj, "endDate"); ok {
		if s, ok := asString(v); ok {
			if t, err := parseDate(s); err == nil {
				rec.EndDate = &t
			}
		}
	}

	// Outcomes either as option objects or as parallel arrays.
	if v, ok := lookup(obj, "options"); ok {
		switch opts := v.(type) {
		case []any:
			if names, prices, ok := fromOptionObjects(opts); ok {
				rec.Outcomes, rec.Prices = names, prices
			} else if names, ok := fromStringArray(opts); ok {
				rec.Outcomes = names
				if pv, ok := lookup(obj, "prices"); ok {
					if prices, ok := fromFloatArray(pv); ok {
						rec.Prices = prices
					}
				}
			}
		}
	}

	rec.Prices = repairPercentages(rec.Prices)
	return rec
}

// fromOptionObjects decodes [{"name": ..., "odds": ...}, ...].
func fromOptionObjects(opts []any) ([]string, []float64, bool) {
	names := make([]string, 0, len(opts))
	prices := make([]float64, 0, len(opts))
	for _, o := range opts {
		obj, ok := o.(map[string]any)
		if !ok {
			return nil, nil, false
		}
		nameRaw, ok := lookup(obj, "optionName")
		if !ok {
			return nil, nil, false
		}
		name, ok := asString(nameRaw)
		if !ok || name == "" {
			return nil, nil, false
		}
		oddsRaw, ok := lookup(obj, "odds")
		if !ok {
			return nil, nil, false
		}
		odds, ok := floatValue(oddsRaw)
		if !ok {
			return nil, nil, false
		}
		names = append(names, name)
		prices = append(prices, odds)
	}
	return names, prices, len(names) > 0
}

func fromStringArray(vals []any) ([]string, bool) {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, len(out) > 0
}

func fromFloatArray(v any) ([]float64, bool) {
	vals, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, len(vals))
	for _, item := range vals {
		f, ok := floatValue(item)
		if !ok {
			return nil, false
		}
		out = append(out, f)
	}
	return out, len(out) > 0
}

// repairPercentages rescales a price set that clearly arrived as percentages
// (every value above 1 and at most 100) back to decimals.
func repairPercentages(prices []float64) []float64 {
	if len(prices) == 0 {
		return prices
	}
	for _, p := range prices {
		if p <= 1.0 || p > 100.0 {
			return prices
		}
	}
	out := make([]float64, len(prices))
	for i, p := range prices {
		out[i] = p / 100.0
	}
	return out
}

// asString extracts a trimmed string.
func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// floatValue extracts a number from a float, an int, or a string with
// currency/percent decoration ("$5,000", "81%").
func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		cleaned := strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(n)
		if cleaned == "" {
			return 0, false
		}
		if strings.HasPrefix(cleaned, "<") {
			cleaned = strings.TrimPrefix(cleaned, "<")
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		if strings.Contains(n, "%") {
			f /= 100.0
		}
		return f, true
	default:
		return 0, false
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "January 2, 2006", "Jan 2, 2006"}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}
