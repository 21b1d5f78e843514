package schema

import (
	"context"
	"log"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"slidedeck/internal/domain"
)

// NoticeFunc delivers a user-facing notice. Delivery is fire-and-forget.
type NoticeFunc func(ctx context.Context, n domain.Notice)

const repairedMessage = "auto-repaired invalid input"

// Repairer wraps a Validator with a minimal recovery path for producer output
// that is parseable but arrived in the wrong shape.
type Repairer struct {
	validator *Validator
	notify    NoticeFunc
}

func NewRepairer(v *Validator, notify NoticeFunc) *Repairer {
	if v == nil {
		v = defaultValidator
	}
	if notify == nil {
		notify = func(context.Context, domain.Notice) {}
	}
	return &Repairer{validator: v, notify: notify}
}

// Validator exposes the wrapped validator for dry-run checks.
func (r *Repairer) Validator() *Validator { return r.validator }

// CoerceAndValidate validates input and, when that fails, retries once on the
// input parsed from its text form. Failure always reports the issues of the
// original input, never those of the retry.
func (r *Repairer) CoerceAndValidate(ctx context.Context, input any) (*domain.Deck, error) {
	deck, issues := r.validator.Validate(input)
	if len(issues) == 0 {
		return deck, nil
	}

	if repaired, ok := r.repair(input, issues); ok {
		log.Printf("[Schema] repaired input (%d original issue(s))", len(issues))
		r.notify(ctx, domain.Notice{Type: domain.NoticeInfo, Message: repairedMessage})
		return repaired, nil
	}

	err := &RepairError{Issues: issues}
	r.notify(ctx, domain.Notice{Type: domain.NoticeError, Message: err.Error()})
	return nil, err
}

func (r *Repairer) repair(input any, original Issues) (*domain.Deck, bool) {
	candidate := input
	if text, ok := asText(input); ok {
		parsed, ok := parseText(text)
		if !ok {
			return nil, false
		}
		candidate = parsed
		if deck, iss := r.validator.Validate(candidate); len(iss) == 0 {
			return deck, true
		} else {
			original = iss
		}
	}

	// Producers that predate block ids still send otherwise valid decks.
	if !onlyMissingBlockIDs(original) {
		return nil, false
	}
	tree, err := normalize(candidate)
	if err != nil {
		return nil, false
	}
	tree = deepCopy(tree)
	if !assignBlockIDs(tree) {
		return nil, false
	}
	deck, iss := r.validator.Validate(tree)
	return deck, len(iss) == 0
}

func asText(input any) (string, bool) {
	switch v := input.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.RawMessage:
		return string(v), true
	default:
		return "", false
	}
}

// parseText decodes a JSON document, unwrapping one level of double encoding.
func parseText(text string) (any, bool) {
	parsed, err := decodeNumbers(text)
	if err != nil {
		return nil, false
	}
	if inner, ok := parsed.(string); ok {
		if parsed, err = decodeNumbers(inner); err != nil {
			return nil, false
		}
	}
	return parsed, true
}

func decodeNumbers(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	blockIDPath   = regexp.MustCompile(`^/slides/\d+/blocks/\d+/id$`)
	blockListPath = regexp.MustCompile(`^/slides/\d+/blocks$`)
)

// onlyMissingBlockIDs reports whether every issue stems from absent or empty
// block ids. Several empty ids in one slide also trip the uniqueness rule.
func onlyMissingBlockIDs(iss Issues) bool {
	missing := false
	for _, is := range iss {
		switch {
		case is.Code == CodeRequired && blockIDPath.MatchString(is.Path):
			missing = true
		case is.Code == CodeDuplicate && blockListPath.MatchString(is.Path):
		default:
			return false
		}
	}
	return missing
}

// assignBlockIDs fills missing or empty block ids in a generic deck tree.
func assignBlockIDs(tree any) bool {
	m, ok := tree.(map[string]any)
	if !ok {
		return false
	}
	slides, ok := m["slides"].([]any)
	if !ok {
		return false
	}
	changed := false
	for _, rs := range slides {
		s, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		blocks, ok := s["blocks"].([]any)
		if !ok {
			continue
		}
		for _, rb := range blocks {
			b, ok := rb.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := b["id"].(string); id == "" {
				b["id"] = uuid.NewString()
				changed = true
			}
		}
	}
	return changed
}

// deepCopy detaches a generic JSON tree so repairs never touch caller input.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
