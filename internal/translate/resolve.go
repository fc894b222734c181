package translate

import (
	"log"
	"strings"

	"github.com/agentic-research/lumen/internal/render"
)

// supportedComponents are the output channel tags a component link may
// name.
const supportedComponents = "xyzrgba"

// ProcessConnections attempts every deferred connection against the
// merged node set. Connections whose target is still absent stay in the
// list; the reader collects them for the dangling pass. Safe to run in
// parallel across workers: in the strict step resolution only reads the
// shared lookup tables.
func (tc *ThreadContext) ProcessConnections() {
	tc.resetPrimvarsStack()

	var dangling []Connection
	for _, conn := range tc.connections {
		if !tc.processConnection(conn) {
			dangling = append(dangling, conn)
		}
	}
	tc.connections = dangling
}

// processConnection applies one connection. It returns false when the
// target does not exist; in the dangling step that is final (the miss is
// logged and the connection dropped by the caller), in the strict step it
// defers the connection.
func (tc *ThreadContext) processConnection(conn Connection) bool {
	step := tc.reader.Step()

	if conn.Kind == KindArray {
		// Strict pass: all-or-nothing, a single missing member defers
		// the whole connection. Dangling pass: each missing member gets
		// one forced materialization, then is dropped individually.
		var targets []*render.Node
		for _, name := range strings.Fields(conn.Target) {
			target := tc.reader.LookupNode(name)
			if target == nil && step == StepDanglingConnections {
				target = tc.materializeTarget(name, conn.Kind)
			}
			if target == nil {
				if step != StepDanglingConnections {
					return false
				}
				log.Printf("translate: dropping %s from array connection %s.%s: no such node",
					name, conn.Source.Name(), conn.Attr)
				continue
			}
			targets = append(targets, target)
		}
		if len(targets) == 0 {
			if step == StepDanglingConnections {
				log.Printf("translate: dropping array connection %s.%s: no member resolved",
					conn.Source.Name(), conn.Attr)
			}
			return false
		}
		conn.Source.SetNodeArray(conn.Attr, targets)
		return true
	}

	// An empty target on a link is an explicit unlink, not an
	// unresolved reference.
	if conn.Target == "" && conn.Kind == KindLink {
		conn.Source.Unlink(conn.Attr)
		return true
	}

	target := tc.reader.LookupNode(conn.Target)
	if target == nil && step == StepDanglingConnections {
		target = tc.materializeTarget(conn.Target, conn.Kind)
	}
	if target == nil {
		if step == StepDanglingConnections {
			log.Printf("translate: dropping connection %s.%s: no node for %s",
				conn.Source.Name(), conn.Attr, conn.Target)
		}
		return false
	}

	switch conn.Kind {
	case KindPointer:
		conn.Source.SetPtr(conn.Attr, target)
	case KindLink:
		if component, ok := outputComponent(conn.OutputComponent); ok {
			conn.Source.LinkOutput(conn.Attr, target, component)
		} else {
			conn.Source.Link(conn.Attr, target)
		}
	}
	return true
}

// outputComponent recognizes a trailing ":x" style channel tag.
func outputComponent(elem string) (string, bool) {
	if len(elem) < 2 || elem[len(elem)-2] != ':' {
		return "", false
	}
	last := elem[len(elem)-1]
	if !strings.ContainsRune(supportedComponents, rune(last)) {
		return "", false
	}
	return string(last), true
}

// materializeTarget force-converts the element at path, out of traversal
// order. Only ever called from the single-threaded dangling pass. For a
// pointer to a prototype root whose own conversion produced nothing, the
// whole prototype subtree is materialized by a nested, strictly
// single-threaded sub-translation scoped to that path, and the resulting
// stand-in is forced invisible: prototypes themselves never render, only
// the instances referencing them do.
func (tc *ThreadContext) materializeTarget(path string, kind ConnectionKind) *render.Node {
	doc := tc.reader.Document()
	if doc == nil {
		return nil
	}
	el := doc.ElementAtPath(path)
	if el == nil {
		return nil
	}

	// The inherited stack of the traversal is long gone; rebuild the
	// full primvar set for this element from the hierarchy.
	tc.primvarsStack[len(tc.primvarsStack)-1] = el.InheritedPrimvars()

	ctx := NewContext(tc)
	tc.reader.ReadElement(el, ctx, el.IsInstance())
	target := tc.reader.LookupNode(path)

	if target == nil && kind == KindPointer && doc.IsPrototypeRoot(el) {
		target = tc.materializePrototype(path)
	}
	return target
}

// materializePrototype runs the nested sub-translation for a prototype
// root and creates the stand-in node the pointer resolves to.
func (tc *ThreadContext) materializePrototype(path string) *render.Node {
	parent := tc.reader
	time := parent.Time()

	sub := NewReader(parent.Universe(), parent.Registry())
	sub.SetThreadCount(1)
	sub.SetFrame(time.Frame)
	sub.SetMotionBlur(time.MotionBlur, time.MotionStart, time.MotionEnd)
	sub.SetMask(parent.Mask())
	sub.SetPurpose(parent.Purpose())
	sub.SetDebug(parent.Debug())
	if err := sub.ReadDocument(parent.Document(), path); err != nil {
		log.Printf("translate: nested read of prototype %s failed: %v", path, err)
		return nil
	}

	// Adopt the nested read's nodes so they merge, and eventually get
	// cleared, with everything else from this pass.
	for _, n := range sub.Nodes() {
		tc.nodes = append(tc.nodes, n)
		tc.nodeNames[n.Name()] = n
	}

	target := tc.reader.LookupNode(path)
	if target == nil {
		target = tc.CreateNode("procedural", path)
		target.SetStr("object_path", path)
		target.SetFlt("frame", time.Frame)
		target.SetFlt("motion_start", time.MotionStart)
		target.SetFlt("motion_end", time.MotionEnd)
		tc.AddNodeName(path, target)
	}
	target.SetByte("visibility", 0)
	return target
}
