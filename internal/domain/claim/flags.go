package claim

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FlagAssessmentUnavailable marks a report produced because the collaborator could not compute one.
const FlagAssessmentUnavailable = "assessment_unavailable"

// FlagSet is a sorted set of named risk flags.
type FlagSet []string

func NewFlagSet(names ...string) FlagSet {
	seen := make(map[string]struct{}, len(names))
	out := make(FlagSet, 0, len(names))
	for _, raw := range names {
		name := normalizeFlagName(raw)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (f FlagSet) Has(name string) bool {
	name = normalizeFlagName(name)
	idx := sort.SearchStrings(f, name)
	return idx < len(f) && f[idx] == name
}

// NormalizeValidationFlags folds the collaborator's flag payload into a FlagSet.
// Accepted shapes: a list of names, or an object of name -> truthy value
// (only truthy entries become flags). Raw JSON of either shape is decoded first.
func NormalizeValidationFlags(raw any) (FlagSet, error) {
	switch v := raw.(type) {
	case nil:
		return FlagSet{}, nil
	case FlagSet:
		return NewFlagSet(v...), nil
	case []string:
		return NewFlagSet(v...), nil
	case []any:
		names := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: validation flag list entry %v is not a string", ErrValidation, item)
			}
			names = append(names, name)
		}
		return NewFlagSet(names...), nil
	case map[string]bool:
		names := make([]string, 0, len(v))
		for name, on := range v {
			if on {
				names = append(names, name)
			}
		}
		return NewFlagSet(names...), nil
	case map[string]any:
		names := make([]string, 0, len(v))
		for name, value := range v {
			if truthy(value) {
				names = append(names, name)
			}
		}
		return NewFlagSet(names...), nil
	case json.RawMessage:
		return normalizeRawFlags(v)
	case []byte:
		return normalizeRawFlags(v)
	case string:
		return normalizeRawFlags([]byte(v))
	default:
		return nil, fmt.Errorf("%w: unsupported validation flag shape %T", ErrValidation, raw)
	}
}

func normalizeRawFlags(raw []byte) (FlagSet, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return FlagSet{}, nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode validation flags: %v", ErrValidation, err)
	}
	if _, isString := decoded.(string); isString {
		return nil, fmt.Errorf("%w: validation flags must be a list or an object", ErrValidation)
	}
	return NormalizeValidationFlags(decoded)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	case float64:
		return v != 0
	default:
		return false
	}
}

func normalizeFlagName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
