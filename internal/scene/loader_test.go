package scene

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDocument = `{
  "children": [
    {
      "name": "World",
      "type": "xform",
      "attrs": {"primvars:tint": [1, 0, 0]},
      "children": [
        {
          "name": "mesh",
          "type": "mesh",
          "attrs": {
            "material:binding": "/World/mat",
            "xform:matrix": {"samples": [
              [0, [1,0,0,0, 0,1,0,0, 0,0,1,0, 0,0,0,1]],
              [1, [1,0,0,0, 0,1,0,0, 0,0,1,0, 5,0,0,1]]
            ]}
          }
        },
        {"name": "inst", "type": "xform", "instance": "/__prototypes/tree"},
        {"name": "off", "type": "mesh", "active": false}
      ]
    }
  ],
  "prototypes": [
    {"name": "tree", "type": "xform", "children": [
      {"name": "leaf", "type": "mesh"}
    ]}
  ]
}`

func TestLoad_FromFilesystem(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "scene.json", []byte(testDocument), 0o644))

	doc, err := Load(fsys, "scene.json")
	require.NoError(t, err)

	world := doc.ElementAtPath("/World")
	require.NotNil(t, world)
	assert.Equal(t, "xform", world.TypeName())

	mesh := doc.ElementAtPath("/World/mesh")
	require.NotNil(t, mesh)
	assert.Equal(t, "/World/mat", mesh.AttrValue("material:binding", 0))

	// Sampled attribute: two keys, floor resolution.
	xf := mesh.Attr("xform:matrix")
	require.NotNil(t, xf)
	assert.True(t, xf.TimeVarying())
	v0, ok := ToFloats(xf.Get(0.5))
	require.True(t, ok)
	assert.Equal(t, 0.0, v0[12])
	v1, ok := ToFloats(xf.Get(1))
	require.True(t, ok)
	assert.Equal(t, 5.0, v1[12])

	inst := doc.ElementAtPath("/World/inst")
	require.NotNil(t, inst)
	assert.True(t, inst.IsInstance())
	assert.Equal(t, "/__prototypes/tree", inst.Prototype())

	off := doc.ElementAtPath("/World/off")
	require.NotNil(t, off)
	assert.False(t, off.Active())

	proto := doc.ElementAtPath("/__prototypes/tree")
	require.NotNil(t, proto)
	assert.True(t, doc.IsPrototypeRoot(proto))
	assert.NotNil(t, doc.ElementAtPath("/__prototypes/tree/leaf"))
}

func TestLoad_Errors(t *testing.T) {
	fsys := memfs.New()
	_, err := Load(fsys, "missing.json")
	assert.Error(t, err)

	require.NoError(t, util.WriteFile(fsys, "bad.json", []byte("not json"), 0o644))
	_, err = Load(fsys, "bad.json")
	assert.Error(t, err)

	require.NoError(t, util.WriteFile(fsys, "array.json", []byte("[1,2]"), 0o644))
	_, err = Load(fsys, "array.json")
	assert.Error(t, err)

	require.NoError(t, util.WriteFile(fsys, "noname.json", []byte(`{"children":[{"type":"mesh"}]}`), 0o644))
	_, err = Load(fsys, "noname.json")
	assert.Error(t, err)
}
