package translate

import (
	"sync"

	"github.com/agentic-research/lumen/internal/render"
	"github.com/agentic-research/lumen/internal/scene"
)

// ThreadContext is the worker-local state of one traversal worker: the
// nodes it created, its deferred connections, its name registrations, its
// inherited-primvar stack and its transform caches.
//
// The three mutexes guard the three lists independently and are never
// nested. They stay nil in fully-synchronous mode (thread count one) so
// the single-threaded path pays no locking cost.
type ThreadContext struct {
	reader     *Reader
	dispatcher *Dispatcher

	nodes       []*render.Node
	nodeNames   map[string]*render.Node
	connections []Connection

	primvarsStack [][]*scene.Attr

	xformCache  *XformCache             // main cache for the current frame
	xformCaches map[float64]*XformCache // lazily created per off-frame sample time

	createNodeMu    *sync.Mutex
	addConnectionMu *sync.Mutex
	addNodeNameMu   *sync.Mutex
}

// SetReader attaches the owning reader and prepares the main transform
// cache for its current frame.
func (tc *ThreadContext) SetReader(r *Reader) {
	tc.reader = r
	if tc.nodeNames == nil {
		tc.nodeNames = make(map[string]*render.Node)
	}
	if tc.xformCache == nil {
		tc.xformCache = NewXformCache(r.Time().Frame)
	}
}

func (tc *ThreadContext) Reader() *Reader { return tc.reader }

// SetDispatcher attaches the async dispatcher. A context with a
// dispatcher shares its lists with asynchronous jobs, so the locks are
// engaged.
func (tc *ThreadContext) SetDispatcher(d *Dispatcher) {
	tc.dispatcher = d
	if d != nil {
		tc.EnableLocks()
	}
}

func (tc *ThreadContext) Dispatcher() *Dispatcher { return tc.dispatcher }

// EnableLocks switches the context to concurrent mode.
func (tc *ThreadContext) EnableLocks() {
	if tc.createNodeMu == nil {
		tc.createNodeMu = &sync.Mutex{}
	}
	if tc.addConnectionMu == nil {
		tc.addConnectionMu = &sync.Mutex{}
	}
	if tc.addNodeNameMu == nil {
		tc.addNodeNameMu = &sync.Mutex{}
	}
}

// Nodes returns the worker-local node list.
func (tc *ThreadContext) Nodes() []*render.Node { return tc.nodes }

// NodeNames returns the worker-local name map.
func (tc *ThreadContext) NodeNames() map[string]*render.Node { return tc.nodeNames }

// Connections returns the worker-local deferred-connection list.
func (tc *ThreadContext) Connections() []Connection { return tc.connections }

// TakeResults hands the node list and name map to the reader's merge step
// and clears the local copies.
func (tc *ThreadContext) TakeResults() ([]*render.Node, map[string]*render.Node) {
	nodes, names := tc.nodes, tc.nodeNames
	tc.nodes = nil
	tc.nodeNames = make(map[string]*render.Node)
	return nodes, names
}

// CreateNode creates a node in the shared namespace and appends it to
// this worker's list.
func (tc *ThreadContext) CreateNode(typeName, name string) *render.Node {
	node := tc.reader.Universe().CreateNode(typeName, name)
	if tc.createNodeMu != nil {
		tc.createNodeMu.Lock()
		defer tc.createNodeMu.Unlock()
	}
	tc.nodes = append(tc.nodes, node)
	return node
}

// AddNodeName registers a name for post-merge lookup.
func (tc *ThreadContext) AddNodeName(name string, node *render.Node) {
	if tc.addNodeNameMu != nil {
		tc.addNodeNameMu.Lock()
		defer tc.addNodeNameMu.Unlock()
	}
	tc.nodeNames[name] = node
}

// AddConnection defers an edge during traversal. During the dangling pass
// there is no later phase left, so the connection is applied immediately
// and synchronously instead.
func (tc *ThreadContext) AddConnection(source *render.Node, attr, target string, kind ConnectionKind, outputComponent string) {
	conn := Connection{Source: source, Attr: attr, Target: target, Kind: kind, OutputComponent: outputComponent}
	switch tc.reader.Step() {
	case StepTraverse:
		if tc.addConnectionMu != nil {
			tc.addConnectionMu.Lock()
			defer tc.addConnectionMu.Unlock()
		}
		tc.connections = append(tc.connections, conn)
	case StepDanglingConnections:
		tc.processConnection(conn)
	}
}

// PrimvarsStack exposes the inherited-primvar stack maintained by the
// traversal loop.
func (tc *ThreadContext) PrimvarsStack() *[][]*scene.Attr { return &tc.primvarsStack }

func (tc *ThreadContext) resetPrimvarsStack() {
	tc.primvarsStack = tc.primvarsStack[:0]
	tc.primvarsStack = append(tc.primvarsStack, nil)
}

func (tc *ThreadContext) topPrimvars() []*scene.Attr {
	if len(tc.primvarsStack) == 0 {
		return nil
	}
	return tc.primvarsStack[len(tc.primvarsStack)-1]
}

// XformCache returns the transform cache for a time value: the main one
// for the current frame (or whenever motion blur is off), a lazily
// created per-time cache otherwise. Caches are worker-local; no lock.
func (tc *ThreadContext) XformCache(frame float64) *XformCache {
	time := tc.reader.Time()
	if !time.MotionBlur || frame == time.Frame {
		return tc.xformCache
	}
	if tc.xformCaches == nil {
		tc.xformCaches = make(map[float64]*XformCache)
	}
	cache, ok := tc.xformCaches[frame]
	if !ok {
		cache = NewXformCache(frame)
		tc.xformCaches[frame] = cache
	}
	return cache
}

// Context is the per-element view handed to converters. Synchronous
// conversion reads the inherited primvars off the thread context's stack;
// dispatched jobs instead carry a snapshot taken at dispatch time,
// together with the pre-resolved transform.
type Context struct {
	tc       *ThreadContext
	matrices []render.Matrix
	primvars []*scene.Attr
}

func NewContext(tc *ThreadContext) *Context {
	return &Context{tc: tc}
}

// fork clones the context for an async job with a transform and primvar
// snapshot.
func (c *Context) fork(matrices []render.Matrix, primvars []*scene.Attr) *Context {
	return &Context{tc: c.tc, matrices: matrices, primvars: primvars}
}

func (c *Context) Reader() *Reader               { return c.tc.reader }
func (c *Context) Time() TimeSettings            { return c.tc.reader.Time() }
func (c *Context) ThreadContext() *ThreadContext { return c.tc }

func (c *Context) CreateNode(typeName, name string) *render.Node {
	return c.tc.CreateNode(typeName, name)
}

func (c *Context) AddNodeName(name string, node *render.Node) {
	c.tc.AddNodeName(name, node)
}

func (c *Context) AddConnection(source *render.Node, attr, target string, kind ConnectionKind, outputComponent string) {
	c.tc.AddConnection(source, attr, target, kind, outputComponent)
}

func (c *Context) XformCache(frame float64) *XformCache {
	return c.tc.XformCache(frame)
}

// Matrices returns the pre-resolved transform keys of a dispatched job,
// nil for synchronous conversion.
func (c *Context) Matrices() []render.Matrix { return c.matrices }

// Primvars returns the inherited primvars visible to the element being
// converted.
func (c *Context) Primvars() []*scene.Attr {
	if c.tc.dispatcher == nil {
		return c.tc.topPrimvars()
	}
	return c.primvars
}

// ElementVisibility resolves an element's effective visibility. During
// the dangling pass the full ancestor chain is computed; in every other
// step traversal pruning already culled invisible subtrees, so the
// computation is skipped.
func (c *Context) ElementVisibility(el *scene.Element, frame float64) bool {
	if c.tc.reader.Step() == StepDanglingConnections {
		return el.ComputeVisibility(frame)
	}
	return true
}
