package translate_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/lumen/internal/convert"
	"github.com/agentic-research/lumen/internal/render"
	"github.com/agentic-research/lumen/internal/scene"
	"github.com/agentic-research/lumen/internal/translate"
)

func newReader(t *testing.T) (*translate.Reader, *render.Universe) {
	t.Helper()
	registry := convert.NewRegistry()
	registry.RegisterBuiltins()
	universe := render.NewUniverse()
	return translate.NewReader(universe, registry), universe
}

func addEl(t *testing.T, doc *scene.Document, parent *scene.Element, name, typeName string) *scene.Element {
	t.Helper()
	el, err := doc.AddElement(parent, name, typeName)
	require.NoError(t, err)
	return el
}

// buildWorld authors the shared test scene:
//
//	/World            xform
//	/World/mesh       mesh, bound to /World/mat
//	/World/mat        material
//	/World/tex        image
//	/World/free       mesh without a binding (gets the default shader)
func buildWorld(t *testing.T) *scene.Document {
	t.Helper()
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")

	mesh := addEl(t, doc, world, "mesh", "mesh")
	doc.SetAttr(mesh, "material:binding", "/World/mat")

	mat := addEl(t, doc, world, "mat", "material")
	doc.SetAttr(mat, "inputs:base", 0.7)

	addEl(t, doc, world, "tex", "image")
	addEl(t, doc, world, "free", "mesh")
	return doc
}

func TestRead_ResolvesConnectionsInStrictPass(t *testing.T) {
	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(buildWorld(t), ""))
	assert.Equal(t, translate.StepFinished, reader.Step())

	mesh := universe.Find("/World/mesh")
	mat := universe.Find("/World/mat")
	require.NotNil(t, mesh)
	require.NotNil(t, mat)
	assert.Same(t, mat, mesh.Param("shader"))

	// The unbound mesh falls back to the default shader.
	free := universe.Find("/World/free")
	require.NotNil(t, free)
	def, ok := free.Param("shader").(*render.Node)
	require.True(t, ok)
	assert.Equal(t, "_default_shader", def.Name())

	// Every created node is in the merged list, no duplicates.
	names := map[string]bool{}
	for _, n := range reader.Nodes() {
		assert.False(t, names[n.Name()], "duplicate node %s", n.Name())
		names[n.Name()] = true
	}
	assert.Equal(t, universe.Len(), len(reader.Nodes()))
}

// A material pruned by purpose must still materialize when a converted
// mesh references it: pruning cannot make referenced elements permanently
// unreachable.
func TestRead_MaterializesPurposePrunedMaterial(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	mesh := addEl(t, doc, world, "mesh", "mesh")
	doc.SetAttr(mesh, "material:binding", "/World/mat")
	mat := addEl(t, doc, world, "mat", "material")
	doc.SetAttr(mat, scene.AttrPurpose, scene.PurposeProxy)

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	matNode := universe.Find("/World/mat")
	require.NotNil(t, matNode, "pruned-but-referenced material must be materialized")
	assert.Same(t, matNode, universe.Find("/World/mesh").Param("shader"))
}

func TestRead_InvisiblePrunedSubtreeSkipped(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	hidden := addEl(t, doc, world, "hidden", "xform")
	doc.SetAttr(hidden, scene.AttrVisibility, scene.VisibilityInvisible)
	addEl(t, doc, hidden, "mesh", "mesh")
	addEl(t, doc, world, "seen", "mesh")

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	assert.Nil(t, universe.Find("/World/hidden/mesh"))
	assert.NotNil(t, universe.Find("/World/seen"))
}

func TestRead_Idempotent(t *testing.T) {
	doc := buildWorld(t)
	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))
	count := universe.Len()
	require.Greater(t, count, 0)

	// Re-reading while nodes exist is a no-op.
	require.NoError(t, reader.ReadDocument(doc, ""))
	assert.Equal(t, count, universe.Len())

	// Clearing invalidates everything; a fresh read rebuilds the same set.
	reader.ClearNodes()
	assert.Equal(t, 0, universe.Len())
	require.NoError(t, reader.ReadDocument(doc, ""))
	assert.Equal(t, count, universe.Len())
}

func TestRead_SetterInvalidatesNodes(t *testing.T) {
	doc := buildWorld(t)
	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))
	require.Greater(t, universe.Len(), 0)

	reader.SetFrame(5)
	assert.Equal(t, 0, universe.Len(), "changing the frame must clear previous nodes")
	assert.Equal(t, translate.StepNotStarted, reader.Step())
}

// graphSignature flattens a node graph to a comparable form: type,
// parameters that reference nodes, and links, keyed by node name.
func graphSignature(nodes []*render.Node) map[string]string {
	sig := make(map[string]string, len(nodes))
	for _, n := range nodes {
		var parts []string
		parts = append(parts, "type="+n.TypeName())
		for name, v := range n.Params() {
			switch target := v.(type) {
			case *render.Node:
				parts = append(parts, fmt.Sprintf("ptr:%s=%s", name, target.Name()))
			case []*render.Node:
				var names []string
				for _, tn := range target {
					names = append(names, tn.Name())
				}
				parts = append(parts, fmt.Sprintf("arr:%s=%s", name, strings.Join(names, ",")))
			}
		}
		for attr, l := range n.Links() {
			parts = append(parts, fmt.Sprintf("link:%s=%s#%s", attr, l.Target.Name(), l.Output))
		}
		sort.Strings(parts)
		sig[n.Name()] = strings.Join(parts, ";")
	}
	return sig
}

// The observable output graph must not depend on the worker fan-out.
func TestRead_ThreadCountInvariant(t *testing.T) {
	build := func(threads int) map[string]string {
		doc := buildWorld(t)
		reader, _ := newReader(t)
		reader.SetThreadCount(threads)
		require.NoError(t, reader.ReadDocument(doc, ""))
		return graphSignature(reader.Nodes())
	}

	baseline := build(1)
	require.NotEmpty(t, baseline)
	for _, threads := range []int{2, 4, 8, 0} {
		assert.Equal(t, baseline, build(threads), "threads=%d diverged from synchronous read", threads)
	}
}

// Array connection "a b c": a pruned but referenced, b converted, c
// missing entirely. The dangling pass materializes a, keeps b, drops c.
func TestRead_ArrayConnectionPartialResolution(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")

	a := addEl(t, doc, world, "a", "point_light")
	doc.SetAttr(a, scene.AttrVisibility, scene.VisibilityInvisible)
	addEl(t, doc, world, "b", "point_light")

	mesh := addEl(t, doc, world, "mesh", "mesh")
	doc.SetAttr(mesh, "light_group", []any{"/World/a", "/World/b", "/World/c"})

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	group, ok := universe.Find("/World/mesh").Param("light_group").([]*render.Node)
	require.True(t, ok, "light_group should resolve to a node array")
	require.Len(t, group, 2)
	assert.Equal(t, "/World/a", group[0].Name())
	assert.Equal(t, "/World/b", group[1].Name())
	assert.Nil(t, universe.Find("/World/c"))
}

func TestRead_MotionBlurFromCameraShutter(t *testing.T) {
	doc := scene.NewDocument()
	options := addEl(t, doc, nil, "options", "options")
	doc.SetAttr(options, "camera", "/World/cam")

	world := addEl(t, doc, nil, "World", "xform")
	cam := addEl(t, doc, world, "cam", "camera")
	doc.SetAttr(cam, "shutter_open", -0.1)
	doc.SetAttr(cam, "shutter_close", 0.1)

	mesh := addEl(t, doc, world, "mesh", "mesh")
	still := render.Identity()
	moved := render.Identity()
	moved[12] = 3
	doc.SetSampledAttr(mesh, "xform:matrix", []scene.Sample{
		{Time: 0.95, Value: toAny(still)},
		{Time: 1.05, Value: toAny(moved)},
	})

	reader, universe := newReader(t)
	reader.SetFrame(1)
	require.NoError(t, reader.ReadDocument(doc, ""))

	time := reader.Time()
	assert.True(t, time.MotionBlur, "camera shutter should enable motion blur")
	assert.Equal(t, -0.1, time.MotionStart)
	assert.Equal(t, 0.1, time.MotionEnd)

	node := universe.Find("/World/mesh")
	require.NotNil(t, node)
	keys := node.Matrices("matrix")
	// Two authored samples inside the open interval plus the interval
	// boundary keys.
	assert.Len(t, keys, 4)
	assert.Equal(t, -0.1, node.Param("motion_start"))
	assert.Equal(t, 0.1, node.Param("motion_end"))

	// A static node still exports a single key.
	camNode := universe.Find("/World/cam")
	require.NotNil(t, camNode)
	assert.Len(t, camNode.Matrices("matrix"), 1)
}

func toAny(m render.Matrix) []any {
	out := make([]any, len(m))
	for i, v := range m {
		out[i] = v
	}
	return out
}

func TestRead_InstanceAndPrototypeMaterialization(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	inst := addEl(t, doc, world, "inst", "xform")
	doc.SetInstance(inst, scene.PrototypeRoot+"/tree")

	proto, err := doc.AddPrototype("tree", "xform")
	require.NoError(t, err)
	addEl(t, doc, proto, "leaf", "mesh")

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	instNode := universe.Find("/World/inst")
	require.NotNil(t, instNode)
	assert.Equal(t, "instance", instNode.TypeName())
	assert.Equal(t, false, instNode.Param("inherit_xform"))

	// The pointer resolved to a stand-in for the prototype, created by
	// the nested sub-translation and forced invisible.
	protoNode, ok := instNode.Param("node").(*render.Node)
	require.True(t, ok, "instance pointer should resolve")
	assert.Equal(t, scene.PrototypeRoot+"/tree", protoNode.Name())
	assert.Equal(t, uint8(0), protoNode.Param("visibility"))

	// The prototype subtree itself was materialized.
	assert.NotNil(t, universe.Find(scene.PrototypeRoot+"/tree/leaf"))
}

func TestRead_LinkVariants(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	addEl(t, doc, world, "tex", "image")
	mat := addEl(t, doc, world, "mat", "material")
	doc.SetAttr(mat, "inputs:base_color", map[string]any{"connect": "/World/tex"})
	doc.SetAttr(mat, "inputs:specular_color", map[string]any{"connect": "/World/tex", "output": "out:r"})
	doc.SetAttr(mat, "inputs:coat_color", map[string]any{"connect": ""})

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	matNode := universe.Find("/World/mat")
	tex := universe.Find("/World/tex")
	require.NotNil(t, matNode)
	require.NotNil(t, tex)

	whole, ok := matNode.LinkAt("base_color")
	require.True(t, ok)
	assert.Same(t, tex, whole.Target)
	assert.Empty(t, whole.Output)

	component, ok := matNode.LinkAt("specular_color")
	require.True(t, ok)
	assert.Same(t, tex, component.Target)
	assert.Equal(t, "r", component.Output)

	// Empty target means explicit unlink, not a dangling reference.
	_, ok = matNode.LinkAt("coat_color")
	assert.False(t, ok)
}

func TestRead_RootPathScopesTheRead(t *testing.T) {
	doc := buildWorld(t)
	outside := addEl(t, doc, nil, "Elsewhere", "xform")
	addEl(t, doc, outside, "mesh", "mesh")

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, "/World"))

	assert.NotNil(t, universe.Find("/World/mesh"))
	assert.Nil(t, universe.Find("/Elsewhere/mesh"))
}

func TestRead_FatalRoots(t *testing.T) {
	reader, _ := newReader(t)
	assert.Error(t, reader.ReadDocument(nil, ""))

	doc := buildWorld(t)
	assert.Error(t, reader.ReadDocument(doc, "/Nope"))

	inactive := addEl(t, doc, nil, "Inactive", "xform")
	doc.SetActive(inactive, false)
	assert.Error(t, reader.ReadDocument(doc, "/Inactive"))

	// Fatal roots produce no nodes.
	assert.Empty(t, reader.Nodes())
}

func TestRead_SkipsUnknownAndInactive(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	addEl(t, doc, world, "widget", "widget")
	off := addEl(t, doc, world, "off", "mesh")
	doc.SetActive(off, false)
	addEl(t, doc, world, "mesh", "mesh")

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	assert.Nil(t, universe.Find("/World/widget"))
	assert.Nil(t, universe.Find("/World/off"))
	assert.NotNil(t, universe.Find("/World/mesh"))
}

func TestRead_MaskRestrictsCategories(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	addEl(t, doc, world, "mesh", "mesh")
	addEl(t, doc, world, "light", "point_light")
	addEl(t, doc, world, "mat", "material")

	reader, universe := newReader(t)
	reader.SetMask(render.MaskShape)
	require.NoError(t, reader.ReadDocument(doc, ""))

	assert.NotNil(t, universe.Find("/World/mesh"))
	assert.Nil(t, universe.Find("/World/light"))
	assert.Nil(t, universe.Find("/World/mat"))
}

func TestRead_InheritedPrimvarsReachLeaves(t *testing.T) {
	doc := scene.NewDocument()
	world := addEl(t, doc, nil, "World", "xform")
	doc.SetAttr(world, "primvars:tint", 0.25)
	group := addEl(t, doc, world, "group", "xform")
	doc.SetAttr(group, "primvars:tint", 0.75)
	addEl(t, doc, group, "mesh", "mesh")
	addEl(t, doc, world, "other", "mesh")

	reader, universe := newReader(t)
	require.NoError(t, reader.ReadDocument(doc, ""))

	// The deeper authored value wins below it; the sibling outside the
	// group sees the parent's.
	assert.Equal(t, 0.75, universe.Find("/World/group/mesh").Param("user:tint"))
	assert.Equal(t, 0.25, universe.Find("/World/other").Param("user:tint"))
}

func TestRead_DispatcherModeMatchesSynchronous(t *testing.T) {
	docA := buildWorld(t)
	readerA, _ := newReader(t)
	require.NoError(t, readerA.ReadDocument(docA, ""))

	docB := buildWorld(t)
	readerB, _ := newReader(t)
	readerB.SetThreadCount(0)
	require.NoError(t, readerB.ReadDocument(docB, ""))

	assert.Equal(t, graphSignature(readerA.Nodes()), graphSignature(readerB.Nodes()))
}
