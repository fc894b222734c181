package scene

import (
	"sort"
	"strings"
)

// Well-known attribute names. Attributes under the "primvars:" namespace
// inherit down the hierarchy; everything else is local to its element.
const (
	AttrVisibility = "visibility"
	AttrPurpose    = "purpose"

	VisibilityInherited = "inherited"
	VisibilityInvisible = "invisible"

	PurposeDefault = "default"
	PurposeRender  = "render"
	PurposeProxy   = "proxy"
	PurposeGuide   = "guide"

	primvarPrefix = "primvars:"
)

// Sample is one time-keyed value of a time-varying attribute.
type Sample struct {
	Time  float64
	Value any
}

// Attr is a named attribute on an element. Value is the default (un-sampled)
// value; Samples, when present, are sorted ascending by time.
type Attr struct {
	Name    string
	Value   any
	Samples []Sample
}

// Get resolves the attribute at a frame. With samples authored, the value
// held at the greatest sample time <= frame wins; before the first sample
// the first sample wins.
func (a *Attr) Get(frame float64) any {
	if len(a.Samples) == 0 {
		return a.Value
	}
	i := sort.Search(len(a.Samples), func(i int) bool {
		return a.Samples[i].Time > frame
	})
	if i == 0 {
		return a.Samples[0].Value
	}
	return a.Samples[i-1].Value
}

// TimeVarying reports whether the attribute holds more than one sample.
func (a *Attr) TimeVarying() bool { return len(a.Samples) > 1 }

// TimesInInterval returns the sample times falling strictly inside
// (lo, hi), matching an open shutter interval.
func (a *Attr) TimesInInterval(lo, hi float64) []float64 {
	var times []float64
	for _, s := range a.Samples {
		if s.Time > lo && s.Time < hi {
			times = append(times, s.Time)
		}
	}
	return times
}

// IsPrimvar reports whether the attribute lives in the inheritable
// "primvars:" namespace.
func (a *Attr) IsPrimvar() bool { return strings.HasPrefix(a.Name, primvarPrefix) }

// PrimvarName strips the namespace prefix.
func (a *Attr) PrimvarName() string { return strings.TrimPrefix(a.Name, primvarPrefix) }

// Element is one node of the source hierarchy. Elements are read-only once
// the document is built; the translator never mutates them.
type Element struct {
	name     string
	path     string
	typeName string
	active   bool
	instance string // prototype path when this element is an instance
	parent   *Element
	children []*Element
	attrs    map[string]*Attr
}

func (e *Element) Name() string     { return e.name }
func (e *Element) Path() string     { return e.path }
func (e *Element) TypeName() string { return e.typeName }
func (e *Element) Active() bool     { return e.active }
func (e *Element) Parent() *Element { return e.parent }

func (e *Element) Children() []*Element { return e.children }

// IsInstance reports whether this element references a shared prototype.
func (e *Element) IsInstance() bool { return e.instance != "" }

// Prototype returns the referenced prototype path, or "".
func (e *Element) Prototype() string { return e.instance }

// Attr returns the named attribute, or nil when unauthored.
func (e *Element) Attr(name string) *Attr { return e.attrs[name] }

// AttrValue resolves the named attribute at a frame, or nil.
func (e *Element) AttrValue(name string, frame float64) any {
	a := e.attrs[name]
	if a == nil {
		return nil
	}
	return a.Get(frame)
}

// Attrs returns every authored attribute, sorted by name for stable order.
func (e *Element) Attrs() []*Attr {
	out := make([]*Attr, 0, len(e.attrs))
	for _, a := range e.attrs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AuthoredPrimvars returns the inheritable attributes authored directly on
// this element, sorted by name.
func (e *Element) AuthoredPrimvars() []*Attr {
	var out []*Attr
	for _, a := range e.attrs {
		if a.IsPrimvar() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IncrementalPrimvars merges this element's authored primvars over the
// parent set. It returns nil when nothing new is authored at this level,
// which callers must treat as "inherit the parent set unchanged".
func (e *Element) IncrementalPrimvars(parent []*Attr) []*Attr {
	authored := e.AuthoredPrimvars()
	if len(authored) == 0 {
		return nil
	}
	merged := make([]*Attr, 0, len(parent)+len(authored))
	overridden := make(map[string]bool, len(authored))
	for _, a := range authored {
		overridden[a.Name] = true
	}
	for _, a := range parent {
		if !overridden[a.Name] {
			merged = append(merged, a)
		}
	}
	merged = append(merged, authored...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

// InheritedPrimvars computes the full primvar set visible at this element,
// walking up from the root. Used when an element is materialized out of
// traversal order and no inherited stack is available.
func (e *Element) InheritedPrimvars() []*Attr {
	if e == nil {
		return nil
	}
	parent := e.parent.InheritedPrimvars()
	if merged := e.IncrementalPrimvars(parent); merged != nil {
		return merged
	}
	return parent
}

// ComputeVisibility resolves visibility at a frame, taking ancestors into
// account: one invisible ancestor hides the whole subtree.
func (e *Element) ComputeVisibility(frame float64) bool {
	for el := e; el != nil; el = el.parent {
		if v, ok := el.AttrValue(AttrVisibility, frame).(string); ok && v == VisibilityInvisible {
			return false
		}
	}
	return true
}
