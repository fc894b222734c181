package translate

import (
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/lumen/internal/render"
	"github.com/agentic-research/lumen/internal/scene"
)

// VisibleAll is the visibility byte of a node visible to every ray kind.
const VisibleAll uint8 = 0xff

// optionsPath is the conventional render-settings element consulted at
// the start of a full-document read.
const optionsPath = "/options"

// ReadStep is the reader-wide phase of a multi-step read. It only ever
// advances within one read cycle.
type ReadStep int

const (
	StepNotStarted ReadStep = iota
	StepTraverse
	StepProcessConnections
	StepDanglingConnections
	StepFinished
)

func (s ReadStep) String() string {
	switch s {
	case StepNotStarted:
		return "not_started"
	case StepTraverse:
		return "traverse"
	case StepProcessConnections:
		return "process_connections"
	case StepDanglingConnections:
		return "dangling_connections"
	case StepFinished:
		return "finished"
	}
	return "unknown"
}

// Converter reads one source element into destination nodes, given a
// per-element context.
type Converter interface {
	// Mask returns the node category the converter produces, tested
	// against the reader's conversion mask.
	Mask() render.Mask
	Convert(el *scene.Element, ctx *Context) error
}

// ConverterRegistry maps a source element type name to its converter.
// Lookup returns nil for types without one; such elements are skipped.
type ConverterRegistry interface {
	Lookup(typeName string) Converter
}

// Reader drives the translation of one scene document into the
// destination node graph. A reader is not safe for concurrent use by
// multiple callers; it owns its worker fan-out internally.
type Reader struct {
	universe *render.Universe
	registry ConverterRegistry

	time        TimeSettings
	convert     bool
	debug       bool
	threadCount int
	mask        render.Mask
	purpose     string

	doc       *scene.Document
	nodes     []*render.Node
	nodeNames map[string]*render.Node

	defaultShader *render.Node
	readerMu      *sync.Mutex // engaged when threadCount != 1

	step       ReadStep
	dispatcher *Dispatcher
}

// NewReader returns a reader translating into the given universe with the
// given converter registry. Defaults: frame 0, no motion blur, one fully
// synchronous thread, all categories, render purpose.
func NewReader(universe *render.Universe, registry ConverterRegistry) *Reader {
	return &Reader{
		universe:    universe,
		registry:    registry,
		convert:     true,
		threadCount: 1,
		mask:        render.MaskAll,
		purpose:     scene.PurposeRender,
		nodeNames:   make(map[string]*render.Node),
	}
}

func (r *Reader) Universe() *render.Universe   { return r.universe }
func (r *Reader) Registry() ConverterRegistry  { return r.registry }
func (r *Reader) Time() TimeSettings           { return r.time }
func (r *Reader) Step() ReadStep               { return r.step }
func (r *Reader) Mask() render.Mask            { return r.mask }
func (r *Reader) Purpose() string              { return r.purpose }
func (r *Reader) Debug() bool                  { return r.debug }
func (r *Reader) ConvertEnabled() bool         { return r.convert }
func (r *Reader) ThreadCount() int             { return r.threadCount }
func (r *Reader) Document() *scene.Document    { return r.doc }
func (r *Reader) Dispatcher() *Dispatcher      { return r.dispatcher }
func (r *Reader) Nodes() []*render.Node        { return r.nodes }

// SetFrame changes the current frame. Nodes from a previous read are
// invalidated; the next read starts fresh.
func (r *Reader) SetFrame(frame float64) {
	r.ClearNodes()
	r.time.Frame = frame
}

// SetMotionBlur changes the motion-blur window, invalidating previous
// nodes.
func (r *Reader) SetMotionBlur(enabled bool, start, end float64) {
	r.ClearNodes()
	r.time.MotionBlur = enabled
	r.time.MotionStart = start
	r.time.MotionEnd = end
}

// SetDebug toggles conversion tracing, invalidating previous nodes.
func (r *Reader) SetDebug(debug bool) {
	r.ClearNodes()
	r.debug = debug
}

// SetConvert toggles element conversion, invalidating previous nodes.
func (r *Reader) SetConvert(convert bool) {
	r.ClearNodes()
	r.convert = convert
}

// SetMask restricts which node categories are converted.
func (r *Reader) SetMask(mask render.Mask) { r.mask = mask }

// SetPurpose sets the accepted purpose token for pruning.
func (r *Reader) SetPurpose(purpose string) { r.purpose = purpose }

// SetThreadCount configures the worker fan-out: 1 is fully synchronous
// with no locking anywhere, N>1 runs N traversal workers, and 0 runs one
// traversal worker plus an async dispatcher for element conversion.
func (r *Reader) SetThreadCount(n int) {
	if n < 0 {
		n = 1
	}
	r.threadCount = n
	if n != 1 && r.readerMu == nil {
		r.readerMu = &sync.Mutex{}
	}
}

func (r *Reader) lockReader() {
	if r.threadCount != 1 && r.readerMu != nil {
		r.readerMu.Lock()
	}
}

func (r *Reader) unlockReader() {
	if r.threadCount != 1 && r.readerMu != nil {
		r.readerMu.Unlock()
	}
}

// LookupNode resolves a created node by name: the reader's merged name
// map first, then the shared namespace.
func (r *Reader) LookupNode(name string) *render.Node {
	if n, ok := r.nodeNames[name]; ok {
		return n
	}
	return r.universe.Find(name)
}

// ClearNodes destroys every node produced by the previous read and resets
// the reader for a fresh one.
func (r *Reader) ClearNodes() {
	for _, n := range r.nodes {
		r.universe.Destroy(n)
	}
	r.nodes = nil
	r.nodeNames = make(map[string]*render.Node)
	r.defaultShader = nil
	r.step = StepNotStarted
}

// DefaultShader lazily creates the fallback surface shader bound to
// shapes without a material: a standard surface whose base color looks up
// the display-color primvar.
func (r *Reader) DefaultShader() *render.Node {
	r.lockReader()
	defer r.unlockReader()

	if r.defaultShader == nil {
		r.defaultShader = r.universe.CreateNode("standard_surface", "_default_shader")
		userData := r.universe.CreateNode("user_data_rgb", "_default_shader_color")
		r.nodes = append(r.nodes, r.defaultShader, userData)
		userData.SetStr("attribute", "displayColor")
		userData.SetRGB("default", 1, 1, 1)
		r.defaultShader.Link("base_color", userData)
	}
	return r.defaultShader
}

type workerState struct {
	id    int
	count int
	tc    ThreadContext
	ctx   *Context
}

// ReadDocument translates the document into the universe, rooted at
// rootPath when non-empty. Calling it again while nodes from a previous
// read exist is a no-op. Per-element failures never abort the read; only
// an unusable document or root does.
func (r *Reader) ReadDocument(doc *scene.Document, rootPath string) error {
	if len(r.nodes) > 0 {
		return nil
	}
	if doc == nil {
		log.Printf("translate: no document to read")
		return fmt.Errorf("no document to read")
	}
	r.doc = doc

	root := doc.Root()
	if rootPath != "" {
		root = doc.ElementAtPath(rootPath)
		if root == nil {
			log.Printf("translate: root path %s is not valid", rootPath)
			r.doc = nil
			return fmt.Errorf("root path %s: %w", rootPath, scene.ErrNotFound)
		}
		if !root.Active() {
			log.Printf("translate: root path element %s is not active", rootPath)
			r.doc = nil
			return fmt.Errorf("root path element %s is not active", rootPath)
		}
	} else {
		// Full-document reads honor the render settings: the active
		// camera's shutter decides the motion-blur window for the
		// whole read.
		r.discoverShutter(doc)
	}

	workers := r.threadCount
	if workers == 0 {
		workers = 1
		r.dispatcher = NewDispatcher()
	}

	states := make([]*workerState, workers)
	for i := range states {
		st := &workerState{id: i, count: workers}
		st.tc.SetReader(r)
		st.tc.SetDispatcher(r.dispatcher)
		if workers > 1 {
			st.tc.EnableLocks()
		}
		st.ctx = NewContext(&st.tc)
		states[i] = st
	}

	// Phase one: traverse and create nodes; connections are deferred
	// since their targets may not exist yet.
	r.step = StepTraverse
	var traverse errgroup.Group
	for _, st := range states {
		st := st
		traverse.Go(func() error {
			r.traverseWorker(st, root)
			return nil
		})
	}
	_ = traverse.Wait()

	// Single-writer merge of every worker's results. The dispatcher is
	// gone after this point; later phases read primvars off the stack
	// again.
	for _, st := range states {
		r.mergeResults(&st.tc)
		st.tc.SetDispatcher(nil)
	}
	r.dispatcher = nil

	// Phase two: each worker resolves its deferred connections against
	// the now-complete node set. Lookups only; no node creation.
	r.step = StepProcessConnections
	var resolve errgroup.Group
	for _, st := range states {
		st := st
		resolve.Go(func() error {
			st.tc.ProcessConnections()
			return nil
		})
	}
	_ = resolve.Wait()

	var dangling []Connection
	for _, st := range states {
		dangling = append(dangling, st.tc.connections...)
		st.tc.connections = nil
	}

	// Phase three: targets that were pruned or never visited are
	// materialized on demand. Strictly single-threaded so each forced
	// conversion happens exactly once.
	r.step = StepDanglingConnections
	if len(dangling) > 0 {
		tc0 := &states[0].tc
		for _, conn := range dangling {
			tc0.processConnection(conn)
		}
		r.mergeResults(tc0)
	}

	r.doc = nil // nothing retains the document past the read
	r.step = StepFinished
	return nil
}

func (r *Reader) mergeResults(tc *ThreadContext) {
	nodes, names := tc.TakeResults()
	r.nodes = append(r.nodes, nodes...)
	for name, n := range names {
		r.nodeNames[name] = n
	}
}

// discoverShutter reads the active camera named by the render settings
// and derives the motion-blur window from its shutter interval.
func (r *Reader) discoverShutter(doc *scene.Document) {
	options := doc.ElementAtPath(optionsPath)
	if options == nil {
		return
	}
	camPath, _ := options.AttrValue("camera", r.time.Frame).(string)
	if camPath == "" {
		return
	}
	cam := doc.ElementAtPath(camPath)
	if cam == nil {
		return
	}
	open := floatAttrOr(cam, "shutter_open", r.time.Frame, 0)
	close := floatAttrOr(cam, "shutter_close", r.time.Frame, 0)
	r.time.MotionBlur = close > open
	r.time.MotionStart = open
	r.time.MotionEnd = close
}

func floatAttrOr(el *scene.Element, name string, frame, fallback float64) float64 {
	if f, ok := scene.ToFloat(el.AttrValue(name, frame)); ok {
		return f
	}
	return fallback
}

// traverseWorker walks the whole hierarchy maintaining the inherited
// primvar stack for every element, but converts only the elements this
// worker owns: ownership is round-robin over a visit index every worker
// computes identically. Subtree partitioning would be unsafe — the stack
// must see every ancestor on the path even when another worker converts
// it.
func (r *Reader) traverseWorker(st *workerState, root *scene.Element) {
	tc := &st.tc
	multi := st.count > 1
	index := 0
	frame := r.time.Frame

	tc.resetPrimvarsStack()

	it := scene.NewIterator(root)
	for it.Next() {
		el := it.Element()
		isInstance := el.IsInstance()

		// Untyped elements are structural only: no stack entry, no
		// conversion, children still visited.
		if el.TypeName() == "" && !isInstance {
			continue
		}
		if it.IsPostVisit() {
			tc.primvarsStack = tc.primvarsStack[:len(tc.primvarsStack)-1]
			continue
		}

		if !el.Active() {
			log.Printf("translate: skipping inactive element %s", el.Path())
			it.PruneChildren()
			continue
		}

		// Incremental inheritance: a level authoring nothing new
		// shares its parent's set.
		if merged := el.IncrementalPrimvars(tc.topPrimvars()); merged != nil {
			tc.primvarsStack = append(tc.primvarsStack, merged)
		} else {
			tc.primvarsStack = append(tc.primvarsStack, tc.topPrimvars())
		}

		if r.pruneElement(el, frame) {
			// Descendants and this element's post visit are both
			// skipped, so pop the entry just pushed here.
			tc.primvarsStack = tc.primvarsStack[:len(tc.primvarsStack)-1]
			it.PruneChildren()
			continue
		}

		// Ownership split happens after the pruning test so every
		// worker's visit index stays in step.
		owned := !multi || (index+st.id)%st.count == 0
		index++
		if !owned {
			continue
		}

		r.ReadElement(el, st.ctx, isInstance)
	}

	if r.dispatcher != nil {
		r.dispatcher.Wait()
	}
}

// pruneElement tests the authored visibility and purpose of an element.
// A pruned element and its whole subtree are skipped by traversal,
// whatever worker owns them.
func (r *Reader) pruneElement(el *scene.Element, frame float64) bool {
	if v, ok := el.AttrValue(scene.AttrVisibility, frame).(string); ok && v == scene.VisibilityInvisible {
		return true
	}
	if p, ok := el.AttrValue(scene.AttrPurpose, frame).(string); ok && p != scene.PurposeDefault && p != r.purpose {
		return true
	}
	return false
}

// ReadElement converts one element. Instances become a lightweight proxy
// node pointing at their prototype through a deferred connection — the
// prototype itself is never converted here. Elements without a registered
// converter, or outside the conversion mask, are skipped.
func (r *Reader) ReadElement(el *scene.Element, ctx *Context, isInstance bool) {
	if isInstance {
		protoPath := el.Prototype()
		if r.doc == nil || r.doc.ElementAtPath(protoPath) == nil {
			log.Printf("translate: instance %s references unknown prototype %s", el.Path(), protoPath)
			return
		}
		time := ctx.Time()
		inst := ctx.CreateNode("instance", el.Path())
		ApplyMatrix(el, inst, time, ctx)
		inst.SetFlt("motion_start", time.MotionStart)
		inst.SetFlt("motion_end", time.MotionEnd)
		inst.SetByte("visibility", VisibleAll)
		inst.SetBool("inherit_xform", false)
		// The prototype lives outside normal traversal, so this stays
		// dangling until the single-threaded pass materializes it.
		ctx.AddConnection(inst, "node", protoPath, KindPointer, "")
		return
	}

	conv := r.registry.Lookup(el.TypeName())
	if conv == nil {
		return
	}
	if r.mask&conv.Mask() == 0 || !r.convert {
		return
	}
	if r.debug {
		log.Printf("translate: element %s (type: %s)", el.Path(), el.TypeName())
	}

	if r.dispatcher != nil {
		// The transform needs the ancestor hierarchy, which only the
		// traversal worker has in scope; resolve it before handing
		// off, along with a snapshot of the inherited primvars.
		matrices := ComputeMatrices(el, r.time, ctx)
		jobCtx := ctx.fork(matrices, ctx.tc.topPrimvars())
		r.dispatcher.Run(func() {
			if err := conv.Convert(el, jobCtx); err != nil {
				log.Printf("translate: converting %s: %v", el.Path(), err)
			}
		})
		return
	}

	if err := conv.Convert(el, ctx); err != nil {
		log.Printf("translate: converting %s: %v", el.Path(), err)
	}
}
