package render

// Mask bits categorize node types; a translation can be restricted to a
// subset of categories.
type Mask uint8

const (
	MaskShape Mask = 1 << iota
	MaskLight
	MaskCamera
	MaskShader
	MaskOperator
	MaskOptions

	MaskAll Mask = MaskShape | MaskLight | MaskCamera | MaskShader | MaskOperator | MaskOptions
)

// MaskNames maps the user-facing category names to mask bits, for CLI and
// job-file parsing.
var MaskNames = map[string]Mask{
	"shape":    MaskShape,
	"light":    MaskLight,
	"camera":   MaskCamera,
	"shader":   MaskShader,
	"operator": MaskOperator,
	"options":  MaskOptions,
	"all":      MaskAll,
}

// ChannelLink binds an attribute to another node's output: the whole
// output when Output is empty, one named channel otherwise.
type ChannelLink struct {
	Target *Node
	Output string
}

// Node is one node of the destination graph. A node is owned by the
// worker that created it until the reader merges worker results; no
// parameter access is concurrent for a single node.
type Node struct {
	id       uint32
	name     string
	typeName string
	params   map[string]any
	links    map[string]ChannelLink
}

func (n *Node) Name() string     { return n.name }
func (n *Node) TypeName() string { return n.typeName }
func (n *Node) ID() uint32       { return n.id }

// Param returns a parameter value, nil when unset.
func (n *Node) Param(name string) any { return n.params[name] }

// Params returns the underlying parameter map. Callers must not mutate it
// concurrently with translation.
func (n *Node) Params() map[string]any { return n.params }

func (n *Node) SetFlt(name string, v float64)  { n.params[name] = v }
func (n *Node) SetInt(name string, v int)      { n.params[name] = v }
func (n *Node) SetBool(name string, v bool)    { n.params[name] = v }
func (n *Node) SetStr(name string, v string)   { n.params[name] = v }
func (n *Node) SetByte(name string, v uint8)   { n.params[name] = v }
func (n *Node) SetRGB(name string, r, g, b float64) {
	n.params[name] = [3]float64{r, g, b}
}

// SetPtr sets a single node-pointer parameter.
func (n *Node) SetPtr(name string, target *Node) { n.params[name] = target }

// SetNodeArray sets an array-of-pointers parameter.
func (n *Node) SetNodeArray(name string, targets []*Node) { n.params[name] = targets }

// SetMatrices sets the motion-key matrix array.
func (n *Node) SetMatrices(name string, keys []Matrix) { n.params[name] = keys }

// Matrices returns the motion-key array of a matrix parameter, nil when
// unset.
func (n *Node) Matrices(name string) []Matrix {
	keys, _ := n.params[name].([]Matrix)
	return keys
}

// Link binds an attribute to the whole output of target.
func (n *Node) Link(attr string, target *Node) {
	n.links[attr] = ChannelLink{Target: target}
}

// LinkOutput binds an attribute to one output channel of target.
func (n *Node) LinkOutput(attr string, target *Node, output string) {
	n.links[attr] = ChannelLink{Target: target, Output: output}
}

// Unlink removes any link on attr. Explicitly unlinking a never-linked
// attribute is a no-op.
func (n *Node) Unlink(attr string) { delete(n.links, attr) }

// LinkAt returns the link bound to attr.
func (n *Node) LinkAt(attr string) (ChannelLink, bool) {
	l, ok := n.links[attr]
	return l, ok
}

// Links returns the link map. Read-only for callers.
func (n *Node) Links() map[string]ChannelLink { return n.links }
