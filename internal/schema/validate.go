package schema

import (
	"errors"
	"fmt"
	"log"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"slidedeck/internal/domain"
)

// SeriesLengthMode decides what happens when a chart series length differs
// from its xLabels length.
type SeriesLengthMode string

const (
	SeriesLengthIgnore SeriesLengthMode = "ignore"
	SeriesLengthWarn   SeriesLengthMode = "warn"
	SeriesLengthStrict SeriesLengthMode = "strict"
)

// ParseSeriesLengthMode maps a config string to a mode, defaulting to ignore.
func ParseSeriesLengthMode(s string) SeriesLengthMode {
	switch SeriesLengthMode(strings.ToLower(strings.TrimSpace(s))) {
	case SeriesLengthWarn:
		return SeriesLengthWarn
	case SeriesLengthStrict:
		return SeriesLengthStrict
	default:
		return SeriesLengthIgnore
	}
}

type Options struct {
	SeriesLength SeriesLengthMode
}

// Validator checks arbitrary input against the deck shape. A type pass walks
// the generic JSON tree; if it is clean, a rule pass runs struct-tag rules on
// the typed deck.
type Validator struct {
	opts  Options
	rules *validator.Validate
}

func New(opts Options) *Validator {
	if opts.SeriesLength == "" {
		opts.SeriesLength = SeriesLengthIgnore
	}
	rules := validator.New(validator.WithRequiredStructEnabled())
	rules.RegisterTagNameFunc(jsonFieldName)
	return &Validator{opts: opts, rules: rules}
}

var defaultValidator = New(Options{})

// Validate checks input with default options.
func Validate(input any) (*domain.Deck, Issues) {
	return defaultValidator.Validate(input)
}

// Validate returns the typed deck or the ordered list of issues. Strings are
// never parsed here; that is the repair pipeline's job.
func (v *Validator) Validate(input any) (*domain.Deck, Issues) {
	tree, err := normalize(input)
	if err != nil {
		return nil, Issues{{Path: "", Code: CodeInvalidType, Message: err.Error()}}
	}

	w := &walker{}
	deck := w.deck(tree)
	if len(w.issues) > 0 {
		return nil, w.issues
	}

	if iss := v.ruleCheck(deck); len(iss) > 0 {
		return nil, iss
	}
	return deck, nil
}

// normalize turns supported input forms into a generic JSON tree.
func normalize(input any) (any, error) {
	switch v := input.(type) {
	case json.RawMessage:
		var out any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("malformed JSON: %w", err)
		}
		return out, nil
	case domain.Deck:
		return roundTrip(&v)
	case *domain.Deck:
		if v == nil {
			return nil, nil
		}
		return roundTrip(v)
	default:
		return input, nil
	}
}

func roundTrip(d *domain.Deck) (any, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode deck: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode deck: %w", err)
	}
	return out, nil
}

// ── Type pass ──────────────────────────────────────────────

type walker struct {
	issues Issues
}

func (w *walker) add(path, code, format string, args ...any) {
	w.issues = append(w.issues, Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (w *walker) deck(tree any) *domain.Deck {
	m, ok := tree.(map[string]any)
	if !ok {
		w.add("", CodeInvalidType, "expected deck object, got %s", typeName(tree))
		return nil
	}
	d := &domain.Deck{}
	d.ID, _ = w.requiredString(m, "", "id")
	d.Title, _ = w.requiredString(m, "", "title")
	d.Theme, _ = w.requiredString(m, "", "theme")
	if n, ok := w.requiredNumber(m, "", "createdAt"); ok {
		d.CreatedAt = int64(n)
	}

	d.Slides = []domain.Slide{}
	if arr, ok := w.requiredArray(m, "", "slides"); ok {
		for i, raw := range arr {
			if s, ok := w.slide(raw, pointer("/slides", i)); ok {
				d.Slides = append(d.Slides, s)
			}
		}
	}

	if raw, present := m["meta"]; present && raw != nil {
		meta, ok := raw.(map[string]any)
		if !ok {
			w.add("/meta", CodeInvalidType, "expected object, got %s", typeName(raw))
		} else {
			d.Meta = &domain.DeckMeta{}
			d.Meta.Source = w.optionalString(meta, "/meta", "source")
			d.Meta.Disclaimer = w.optionalString(meta, "/meta", "disclaimer")
		}
	}
	if raw, present := m["patch"]; present && raw != nil {
		b, ok := raw.(bool)
		if !ok {
			w.add("/patch", CodeInvalidType, "expected boolean, got %s", typeName(raw))
		}
		d.Patch = b
	}
	return d
}

func (w *walker) slide(raw any, path string) (domain.Slide, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		w.add(path, CodeInvalidType, "expected slide object, got %s", typeName(raw))
		return domain.Slide{}, false
	}
	s := domain.Slide{}
	s.ID, _ = w.requiredString(m, path, "id")
	if layout, ok := w.requiredString(m, path, "layout"); ok {
		if !isLayout(layout) {
			w.add(path+"/layout", CodeInvalidEnum, "invalid layout %q (expected one of %s)", layout, joinEnum(domain.Layouts))
		}
		s.Layout = domain.Layout(layout)
	}
	s.Title = w.optionalString(m, path, "title")
	s.Notes = w.optionalString(m, path, "notes")

	s.Blocks = []domain.Block{}
	if arr, ok := w.requiredArray(m, path, "blocks"); ok {
		for i, rawBlock := range arr {
			if b, ok := w.block(rawBlock, pointer(path+"/blocks", i)); ok {
				s.Blocks = append(s.Blocks, b)
			}
		}
	}
	return s, true
}

// blockFields is the closed field set per kind, in check order.
var blockFields = map[domain.BlockKind][]string{
	domain.BlockKindText:   {"html"},
	domain.BlockKindBullet: {"items"},
	domain.BlockKindKPI:    {"label", "value", "delta", "intent"},
	domain.BlockKindQuote:  {"text", "by"},
	domain.BlockKindImage:  {"dataUrl", "url", "caption"},
	domain.BlockKindChart:  {"chartType", "dataset", "xLabels", "yLabel"},
}

func (w *walker) block(raw any, path string) (domain.Block, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		w.add(path, CodeInvalidType, "expected block object, got %s", typeName(raw))
		return domain.Block{}, false
	}
	b := domain.Block{}
	b.ID, _ = w.requiredString(m, path, "id")

	kind, ok := w.requiredString(m, path, "kind")
	if !ok {
		return b, false
	}
	b.Kind = domain.BlockKind(kind)
	allowed, known := blockFields[b.Kind]
	if !known {
		w.add(path+"/kind", CodeInvalidEnum, "invalid block kind %q (expected one of %s)", kind, joinEnum(domain.BlockKinds))
		return b, false
	}

	if f, ok := w.frame(m, path); ok {
		b.Frame = f
	}

	switch b.Kind {
	case domain.BlockKindText:
		html, _ := w.requiredString(m, path, "html")
		b.Text = &domain.TextBlock{HTML: html}
	case domain.BlockKindBullet:
		items, _ := w.requiredStringArray(m, path, "items")
		b.Bullet = &domain.BulletBlock{Items: items}
	case domain.BlockKindKPI:
		k := &domain.KPIBlock{}
		k.Label, _ = w.requiredString(m, path, "label")
		k.Value, _ = w.requiredString(m, path, "value")
		k.Delta = w.optionalString(m, path, "delta")
		if intent := w.optionalString(m, path, "intent"); intent != "" {
			if !isIntent(intent) {
				w.add(path+"/intent", CodeInvalidEnum, "invalid intent %q (expected one of %s)", intent, joinEnum(domain.Intents))
			}
			k.Intent = domain.Intent(intent)
		}
		b.KPI = k
	case domain.BlockKindQuote:
		q := &domain.QuoteBlock{}
		q.Text, _ = w.requiredString(m, path, "text")
		q.By = w.optionalString(m, path, "by")
		b.Quote = q
	case domain.BlockKindImage:
		b.Image = &domain.ImageBlock{
			DataURL: w.optionalString(m, path, "dataUrl"),
			URL:     w.optionalString(m, path, "url"),
			Caption: w.optionalString(m, path, "caption"),
		}
	case domain.BlockKindChart:
		b.Chart = w.chart(m, path)
	}

	w.unexpected(m, path, allowed)
	return b, true
}

func (w *walker) chart(m map[string]any, path string) *domain.ChartBlock {
	c := &domain.ChartBlock{}
	if ct, ok := w.requiredString(m, path, "chartType"); ok {
		if !isChartType(ct) {
			w.add(path+"/chartType", CodeInvalidEnum, "invalid chartType %q (expected one of %s)", ct, joinEnum(domain.ChartTypes))
		}
		c.ChartType = domain.ChartType(ct)
	}
	if arr, ok := w.requiredArray(m, path, "dataset"); ok {
		c.Dataset = make([]domain.Series, 0, len(arr))
		for i, raw := range arr {
			sp := pointer(path+"/dataset", i)
			sm, ok := raw.(map[string]any)
			if !ok {
				w.add(sp, CodeInvalidType, "expected series object, got %s", typeName(raw))
				continue
			}
			s := domain.Series{}
			s.Name, _ = w.requiredString(sm, sp, "name")
			if vals, ok := w.requiredArray(sm, sp, "values"); ok {
				s.Values = make([]float64, 0, len(vals))
				for j, rv := range vals {
					n, ok := toNumber(rv)
					if !ok {
						w.add(pointer(sp+"/values", j), CodeInvalidType, "expected number, got %s", typeName(rv))
						continue
					}
					s.Values = append(s.Values, n)
				}
			}
			c.Dataset = append(c.Dataset, s)
		}
	}
	if raw, present := m["xLabels"]; present && raw != nil {
		c.XLabels, _ = w.requiredStringArray(m, path, "xLabels")
	}
	c.YLabel = w.optionalString(m, path, "yLabel")
	return c
}

func (w *walker) frame(m map[string]any, path string) (domain.Frame, bool) {
	raw, present := m["frame"]
	fp := path + "/frame"
	if !present || raw == nil {
		w.add(fp, CodeRequired, "frame is required")
		return domain.Frame{}, false
	}
	fm, ok := raw.(map[string]any)
	if !ok {
		w.add(fp, CodeInvalidType, "expected frame object, got %s", typeName(raw))
		return domain.Frame{}, false
	}
	f := domain.Frame{}
	f.X, _ = w.requiredNumber(fm, fp, "x")
	f.Y, _ = w.requiredNumber(fm, fp, "y")
	f.W, _ = w.requiredNumber(fm, fp, "w")
	f.H, _ = w.requiredNumber(fm, fp, "h")
	return f, true
}

// unexpected reports keys outside the closed field set of the active kind,
// in sorted order so the report is stable.
func (w *walker) unexpected(m map[string]any, path string, allowed []string) {
	var extra []string
	for k := range m {
		switch k {
		case "id", "kind", "frame":
			continue
		}
		if !contains(allowed, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		w.add(path+"/"+escape(k), CodeUnexpectedField, "unexpected field %q for kind %q", k, m["kind"])
	}
}

func (w *walker) requiredString(m map[string]any, path, key string) (string, bool) {
	raw, present := m[key]
	fp := path + "/" + key
	if !present || raw == nil {
		w.add(fp, CodeRequired, "%s is required", key)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		w.add(fp, CodeInvalidType, "expected string, got %s", typeName(raw))
		return "", false
	}
	return s, true
}

func (w *walker) optionalString(m map[string]any, path, key string) string {
	raw, present := m[key]
	if !present || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		w.add(path+"/"+key, CodeInvalidType, "expected string, got %s", typeName(raw))
		return ""
	}
	return s
}

func (w *walker) requiredNumber(m map[string]any, path, key string) (float64, bool) {
	raw, present := m[key]
	fp := path + "/" + key
	if !present || raw == nil {
		w.add(fp, CodeRequired, "%s is required", key)
		return 0, false
	}
	n, ok := toNumber(raw)
	if !ok {
		w.add(fp, CodeInvalidType, "expected number, got %s", typeName(raw))
		return 0, false
	}
	return n, true
}

func (w *walker) requiredArray(m map[string]any, path, key string) ([]any, bool) {
	raw, present := m[key]
	fp := path + "/" + key
	if !present || raw == nil {
		w.add(fp, CodeRequired, "%s is required", key)
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok {
		w.add(fp, CodeInvalidType, "expected array, got %s", typeName(raw))
		return nil, false
	}
	return arr, true
}

func (w *walker) requiredStringArray(m map[string]any, path, key string) ([]string, bool) {
	arr, ok := w.requiredArray(m, path, key)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	clean := true
	for i, raw := range arr {
		s, ok := raw.(string)
		if !ok {
			w.add(pointer(path+"/"+key, i), CodeInvalidType, "expected string, got %s", typeName(raw))
			clean = false
			continue
		}
		out = append(out, s)
	}
	return out, clean
}

// ── Rule pass ──────────────────────────────────────────────

func (v *Validator) ruleCheck(d *domain.Deck) Issues {
	var iss Issues
	if err := v.rules.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				iss = append(iss, ruleIssue(fe))
			}
		} else {
			iss = append(iss, Issue{Path: "", Code: CodeInvalidValue, Message: err.Error()})
		}
	}
	if v.opts.SeriesLength != SeriesLengthIgnore {
		iss = append(iss, v.seriesLengths(d)...)
	}
	return iss
}

func (v *Validator) seriesLengths(d *domain.Deck) Issues {
	var iss Issues
	for si, s := range d.Slides {
		for bi, b := range s.Blocks {
			if b.Chart == nil || len(b.Chart.XLabels) == 0 {
				continue
			}
			for ki, series := range b.Chart.Dataset {
				if len(series.Values) == len(b.Chart.XLabels) {
					continue
				}
				path := fmt.Sprintf("/slides/%d/blocks/%d/dataset/%d/values", si, bi, ki)
				msg := fmt.Sprintf("series %q has %d values but %d xLabels", series.Name, len(series.Values), len(b.Chart.XLabels))
				if v.opts.SeriesLength == SeriesLengthWarn {
					log.Printf("[Schema] warning %s: %s", path, msg)
					continue
				}
				iss = append(iss, Issue{Path: path, Code: CodeSeriesLength, Message: msg})
			}
		}
	}
	return iss
}

func ruleIssue(fe validator.FieldError) Issue {
	path := namespaceToPointer(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return Issue{Path: path, Code: CodeRequired, Message: fe.Field() + " must not be empty"}
	case "unique":
		return Issue{Path: path, Code: CodeDuplicate, Message: fe.Field() + " contains duplicate ids"}
	case "gte":
		return Issue{Path: path, Code: CodeInvalidValue, Message: fe.Field() + " must be >= " + fe.Param()}
	case "min":
		return Issue{Path: path, Code: CodeInvalidValue, Message: fe.Field() + " must contain at least " + fe.Param() + " item(s)"}
	default:
		return Issue{Path: path, Code: CodeInvalidValue, Message: fe.Error()}
	}
}

// variantFields are Go-only struct fields flattened away on the wire.
var variantFields = map[string]bool{
	"Text": true, "Bullet": true, "KPI": true, "Quote": true, "Image": true, "Chart": true,
}

// namespaceToPointer converts "Deck.slides[0].blocks[1].Chart.dataset" into
// "/slides/0/blocks/1/dataset".
func namespaceToPointer(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	var b strings.Builder
	for _, p := range parts {
		name, idx := p, ""
		if i := strings.IndexByte(p, '['); i >= 0 {
			name, idx = p[:i], strings.Trim(p[i:], "[]")
		}
		if !variantFields[name] {
			b.WriteString("/" + escape(name))
		}
		if idx != "" {
			b.WriteString("/" + idx)
		}
	}
	return b.String()
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

// ── helpers ────────────────────────────────────────────────

func pointer(base string, i int) string {
	return base + "/" + strconv.Itoa(i)
}

// escape applies JSON pointer escaping to a single token.
func escape(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	return strings.ReplaceAll(tok, "/", "~1")
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	if _, ok := toNumber(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func isLayout(s string) bool    { return contains(domain.Layouts, domain.Layout(s)) }
func isChartType(s string) bool { return contains(domain.ChartTypes, domain.ChartType(s)) }
func isIntent(s string) bool    { return contains(domain.Intents, domain.Intent(s)) }

func joinEnum[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, "|")
}

func contains[T comparable](vals []T, v T) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}
