package ecw

import (
	"encoding/json"
	"strconv"
	"strings"
)

// records finds the first of keys in payload and returns its value as a list
// of maps. A single map is treated as a one-element list; anything else,
// including a ParseError payload, yields nil.
func records(payload any, keys ...string) []map[string]any {
	m, ok := payload.(map[string]any)
	if !ok {
		if list, ok := payload.([]any); ok {
			return mapsOf(list)
		}
		return nil
	}
	for _, key := range keys {
		v, ok := lookupKey(m, key)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case []any:
			return mapsOf(t)
		case map[string]any:
			// A container with attributes keeps its item element as a key.
			if name, inner, ok := soleChild(t); ok {
				switch it := inner.(type) {
				case []any:
					return mapsOf(it)
				case map[string]any:
					if isPluralOf(key, name) {
						return []map[string]any{it}
					}
				}
			}
			return []map[string]any{t}
		}
	}
	return nil
}

// soleChild returns the only non-attribute entry of m.
func soleChild(m map[string]any) (string, any, bool) {
	var (
		name  string
		value any
		n     int
	)
	for k, v := range m {
		if strings.HasPrefix(k, "@") {
			continue
		}
		name, value = k, v
		n++
	}
	return name, value, n == 1
}

func mapsOf(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// lookupKey is a case-insensitive map lookup; an exact match wins.
func lookupKey(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// field returns the first non-empty value among names as a string.
func field(rec map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := lookupKey(rec, name); ok {
			if s := strings.TrimSpace(stringValue(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		if text, ok := t["#text"]; ok {
			return stringValue(text)
		}
	}
	return ""
}

// historyItems reads existing history entries out of a history fetch. Leaf
// fields beyond the known ones are kept in Extra so a rewrite carries them.
func historyItems(payload any, kind HistoryKind) []HistoryItem {
	key := "surgical_history"
	if kind == HospitalizationHistory {
		key = "hospitalization_history"
	}
	known := map[string]bool{"id": true, "reason": true, "date": true, "displayindex": true}
	if kind == SurgicalHistory {
		known["cptcode"] = true
	}

	recs := records(payload, key, kind.String(), "item")
	items := make([]HistoryItem, 0, len(recs))
	for _, rec := range recs {
		item := HistoryItem{
			ID:           field(rec, "id", "Id"),
			Reason:       field(rec, "reason"),
			Date:         field(rec, "date"),
			DisplayIndex: field(rec, "displayIndex"),
		}
		if kind == SurgicalHistory {
			item.CPTCode = field(rec, "cptcode", "cptCode")
		}
		for k, v := range rec {
			if known[strings.ToLower(k)] || strings.HasPrefix(k, "@") || strings.HasPrefix(k, "#") {
				continue
			}
			switch v.(type) {
			case map[string]any, []any:
				continue
			}
			if item.Extra == nil {
				item.Extra = map[string]string{}
			}
			item.Extra[k] = stringValue(v)
		}
		items = append(items, item)
	}
	return items
}
