package scene

import (
	"fmt"
	"io"
	"sort"

	billy "github.com/go-git/go-billy/v5"
	"github.com/ohler55/ojg/oj"
)

// Load reads a JSON scene document from a filesystem. The billy
// abstraction lets tests feed in-memory documents and the CLI use the
// host filesystem through the same path.
func Load(fsys billy.Filesystem, path string) (*Document, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document %s: %w", path, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", path, err)
	}
	return doc, nil
}

// Parse builds a document from JSON bytes. The expected shape is
//
//	{"children": [...elements], "prototypes": [...elements]}
//
// where an element is {"name", "type", "active", "instance", "attrs",
// "children"}. An attribute value of the form {"samples": [[t, v], ...]}
// is time-varying.
func Parse(data []byte) (*Document, error) {
	v, err := oj.Parse(data)
	if err != nil {
		return nil, err
	}
	top, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document root must be an object, got %T", v)
	}

	doc := NewDocument()
	for _, child := range asSlice(top["children"]) {
		if err := loadElement(doc, doc.Root(), child, false); err != nil {
			return nil, err
		}
	}
	for _, proto := range asSlice(top["prototypes"]) {
		if err := loadElement(doc, nil, proto, true); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func loadElement(doc *Document, parent *Element, v any, prototype bool) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("element must be an object, got %T", v)
	}
	name, _ := obj["name"].(string)
	if name == "" {
		return fmt.Errorf("element under %s is missing a name", parentPath(parent))
	}
	typeName, _ := obj["type"].(string)

	var el *Element
	var err error
	if prototype {
		el, err = doc.AddPrototype(name, typeName)
	} else {
		el, err = doc.AddElement(parent, name, typeName)
	}
	if err != nil {
		return err
	}

	if active, ok := obj["active"].(bool); ok {
		doc.SetActive(el, active)
	}
	if inst, ok := obj["instance"].(string); ok {
		doc.SetInstance(el, inst)
	}
	if attrs, ok := obj["attrs"].(map[string]any); ok {
		if err := loadAttrs(doc, el, attrs); err != nil {
			return fmt.Errorf("element %s: %w", el.Path(), err)
		}
	}
	for _, child := range asSlice(obj["children"]) {
		if err := loadElement(doc, el, child, false); err != nil {
			return err
		}
	}
	return nil
}

func loadAttrs(doc *Document, el *Element, attrs map[string]any) error {
	// Sort for deterministic error order.
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := attrs[name]
		if obj, ok := value.(map[string]any); ok {
			if raw, sampled := obj["samples"]; sampled {
				samples, err := loadSamples(raw)
				if err != nil {
					return fmt.Errorf("attribute %s: %w", name, err)
				}
				doc.SetSampledAttr(el, name, samples)
				continue
			}
		}
		doc.SetAttr(el, name, value)
	}
	return nil
}

func loadSamples(v any) ([]Sample, error) {
	var samples []Sample
	for _, entry := range asSlice(v) {
		pair := asSlice(entry)
		if len(pair) != 2 {
			return nil, fmt.Errorf("sample must be a [time, value] pair, got %v", entry)
		}
		t, ok := ToFloat(pair[0])
		if !ok {
			return nil, fmt.Errorf("sample time must be a number, got %v", pair[0])
		}
		samples = append(samples, Sample{Time: t, Value: pair[1]})
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].Time < samples[j].Time })
	return samples, nil
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func parentPath(parent *Element) string {
	if parent == nil {
		return PrototypeRoot
	}
	return parent.Path()
}

// ToFloat coerces the numeric types the JSON parser produces.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// ToFloats coerces a JSON array of numbers.
func ToFloats(v any) ([]float64, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(raw))
	for i, e := range raw {
		f, ok := ToFloat(e)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}
