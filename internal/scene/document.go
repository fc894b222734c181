package scene

import (
	"errors"
	"fmt"
	"strings"
)

// PrototypeRoot is the reserved namespace holding shared prototype
// hierarchies. Elements under it are reachable by path lookup but are
// never visited by a top-down traversal of the document root.
const PrototypeRoot = "/__prototypes"

var ErrNotFound = errors.New("element not found")

// Document is an in-memory scene hierarchy: a pseudo-root, a path index
// over every element including prototypes, and the prototype forest.
type Document struct {
	root       *Element
	protoRoot  *Element
	byPath     map[string]*Element
	prototypes []*Element
}

// NewDocument returns an empty document with a pseudo-root at "/".
func NewDocument() *Document {
	d := &Document{byPath: make(map[string]*Element)}
	d.root = &Element{name: "", path: "/", active: true, attrs: map[string]*Attr{}}
	d.protoRoot = &Element{name: "__prototypes", path: PrototypeRoot, active: true, attrs: map[string]*Attr{}}
	d.byPath["/"] = d.root
	return d
}

// Root returns the pseudo-root; traversals start here by default.
func (d *Document) Root() *Element { return d.root }

// Prototypes returns the roots of the prototype forest.
func (d *Document) Prototypes() []*Element { return d.prototypes }

// ElementAtPath looks an element up by its slash path. Prototype elements
// resolve here even though traversal never reaches them.
func (d *Document) ElementAtPath(path string) *Element {
	return d.byPath[path]
}

// AddElement creates an element under the given parent. A nil parent
// attaches to the document root.
func (d *Document) AddElement(parent *Element, name, typeName string) (*Element, error) {
	if parent == nil {
		parent = d.root
	}
	path := childPath(parent.path, name)
	if _, exists := d.byPath[path]; exists {
		return nil, fmt.Errorf("element %s already exists", path)
	}
	el := &Element{
		name:     name,
		path:     path,
		typeName: typeName,
		active:   true,
		parent:   parent,
		attrs:    map[string]*Attr{},
	}
	parent.children = append(parent.children, el)
	d.byPath[path] = el
	return el, nil
}

// AddPrototype creates a prototype root. Its subtree is built with
// AddElement like any other, but top-down traversal skips it.
func (d *Document) AddPrototype(name, typeName string) (*Element, error) {
	el, err := d.AddElement(d.protoRoot, name, typeName)
	if err != nil {
		return nil, err
	}
	d.prototypes = append(d.prototypes, el)
	return el, nil
}

// SetAttr authors an attribute with a default value.
func (d *Document) SetAttr(el *Element, name string, value any) {
	el.attrs[name] = &Attr{Name: name, Value: value}
}

// SetSampledAttr authors a time-varying attribute. Samples must be sorted
// ascending by time.
func (d *Document) SetSampledAttr(el *Element, name string, samples []Sample) {
	el.attrs[name] = &Attr{Name: name, Samples: samples}
}

// SetActive marks an element (in)active. Inactive elements are skipped by
// traversal and refuse to act as read roots.
func (d *Document) SetActive(el *Element, active bool) { el.active = active }

// SetInstance marks an element as an instance of the prototype at path.
func (d *Document) SetInstance(el *Element, prototypePath string) {
	el.instance = prototypePath
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// IsPrototypePath reports whether a path points into the prototype
// namespace.
func IsPrototypePath(path string) bool {
	return path == PrototypeRoot || strings.HasPrefix(path, PrototypeRoot+"/")
}

// IsPrototypeRoot reports whether the element is the root of a prototype
// hierarchy (a direct child of the reserved prototype namespace).
func (d *Document) IsPrototypeRoot(el *Element) bool {
	return el.parent == d.protoRoot
}
