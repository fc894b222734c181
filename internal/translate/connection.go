package translate

import "github.com/agentic-research/lumen/internal/render"

// ConnectionKind distinguishes how a deferred edge is applied once its
// target exists.
type ConnectionKind int

const (
	// KindLink binds a source attribute to a target node's output,
	// optionally to one named channel of it.
	KindLink ConnectionKind = iota
	// KindPointer sets a single node-pointer parameter.
	KindPointer
	// KindArray sets an array-of-pointers parameter; the target
	// identifier is a whitespace-separated list of paths.
	KindArray
)

// Connection is a deferred edge from a created node to a target that may
// not exist yet. Connections are recorded during traversal and applied by
// the resolution phases.
type Connection struct {
	Source *render.Node
	Attr   string
	Target string
	Kind   ConnectionKind
	// OutputComponent selects one channel of a multi-channel output for
	// KindLink, using a trailing ":x" style tag (x/y/z/r/g/b/a).
	OutputComponent string
}
