package convert

import (
	"strings"

	"github.com/agentic-research/lumen/internal/render"
	"github.com/agentic-research/lumen/internal/scene"
	"github.com/agentic-research/lumen/internal/translate"
)

const inputPrefix = "inputs:"

// meshConverter translates a mesh element into a polymesh node with its
// transform, inherited primvars and material binding.
type meshConverter struct{}

func (meshConverter) Mask() render.Mask { return render.MaskShape }

func (m *meshConverter) Convert(el *scene.Element, ctx *translate.Context) error {
	time := ctx.Time()
	node := ctx.CreateNode("polymesh", el.Path())
	ctx.AddNodeName(el.Path(), node)

	translate.ApplyMatrix(el, node, time, ctx)

	vis := translate.VisibleAll
	if !ctx.ElementVisibility(el, time.Frame) {
		vis = 0
	}
	node.SetByte("visibility", vis)

	if ds, ok := el.AttrValue("doubleSided", time.Frame).(bool); ok && ds {
		node.SetByte("sidedness", translate.VisibleAll)
	}

	applyPrimvars(node, ctx, time.Frame)

	// Material binding resolves later: the material may live anywhere
	// in the hierarchy, converted by any worker or not at all.
	if binding, ok := el.AttrValue("material:binding", time.Frame).(string); ok && binding != "" {
		ctx.AddConnection(node, "shader", binding, translate.KindPointer, "")
	} else {
		node.SetPtr("shader", ctx.Reader().DefaultShader())
	}

	if group := pathList(el.AttrValue("light_group", time.Frame)); group != "" {
		node.SetBool("use_light_group", true)
		ctx.AddConnection(node, "light_group", group, translate.KindArray, "")
	}
	return nil
}

// cameraConverter translates a camera element into a persp_camera node.
type cameraConverter struct{}

func (cameraConverter) Mask() render.Mask { return render.MaskCamera }

func (c *cameraConverter) Convert(el *scene.Element, ctx *translate.Context) error {
	time := ctx.Time()
	node := ctx.CreateNode("persp_camera", el.Path())
	ctx.AddNodeName(el.Path(), node)

	translate.ApplyMatrix(el, node, time, ctx)

	if fov, ok := scene.ToFloat(el.AttrValue("fov", time.Frame)); ok {
		node.SetFlt("fov", fov)
	}
	if open, ok := scene.ToFloat(el.AttrValue("shutter_open", time.Frame)); ok {
		node.SetFlt("shutter_start", open)
	}
	if close, ok := scene.ToFloat(el.AttrValue("shutter_close", time.Frame)); ok {
		node.SetFlt("shutter_end", close)
	}
	return nil
}

// lightConverter translates the light element types; the destination node
// type mirrors the source one.
type lightConverter struct {
	nodeType string
}

func (lightConverter) Mask() render.Mask { return render.MaskLight }

func (l *lightConverter) Convert(el *scene.Element, ctx *translate.Context) error {
	time := ctx.Time()
	node := ctx.CreateNode(l.nodeType, el.Path())
	ctx.AddNodeName(el.Path(), node)

	translate.ApplyMatrix(el, node, time, ctx)

	if intensity, ok := scene.ToFloat(el.AttrValue("intensity", time.Frame)); ok {
		node.SetFlt("intensity", intensity)
	}
	if exposure, ok := scene.ToFloat(el.AttrValue("exposure", time.Frame)); ok {
		node.SetFlt("exposure", exposure)
	}
	applyInput(node, ctx, "color", el.AttrValue(inputPrefix+"color", time.Frame))
	return nil
}

// materialConverter translates a material element into a standard surface
// shader; every inputs:* attribute becomes either a constant parameter or
// a deferred link to another shader.
type materialConverter struct{}

func (materialConverter) Mask() render.Mask { return render.MaskShader }

func (m *materialConverter) Convert(el *scene.Element, ctx *translate.Context) error {
	time := ctx.Time()
	node := ctx.CreateNode("standard_surface", el.Path())
	ctx.AddNodeName(el.Path(), node)

	for _, a := range el.Attrs() {
		if !strings.HasPrefix(a.Name, inputPrefix) {
			continue
		}
		applyInput(node, ctx, strings.TrimPrefix(a.Name, inputPrefix), a.Get(time.Frame))
	}
	return nil
}

// imageConverter translates a texture element into an image shader node.
type imageConverter struct{}

func (imageConverter) Mask() render.Mask { return render.MaskShader }

func (i *imageConverter) Convert(el *scene.Element, ctx *translate.Context) error {
	time := ctx.Time()
	node := ctx.CreateNode("image", el.Path())
	ctx.AddNodeName(el.Path(), node)

	if filename, ok := el.AttrValue("filename", time.Frame).(string); ok {
		node.SetStr("filename", filename)
	}
	return nil
}

// optionsConverter translates the render-settings element. The active
// camera is a pointer connection like any other cross-reference.
type optionsConverter struct{}

func (optionsConverter) Mask() render.Mask { return render.MaskOptions }

func (o *optionsConverter) Convert(el *scene.Element, ctx *translate.Context) error {
	time := ctx.Time()
	node := ctx.CreateNode("options", el.Path())
	ctx.AddNodeName(el.Path(), node)

	if aa, ok := scene.ToFloat(el.AttrValue("aa_samples", time.Frame)); ok {
		node.SetInt("AA_samples", int(aa))
	}
	if cam, ok := el.AttrValue("camera", time.Frame).(string); ok && cam != "" {
		ctx.AddConnection(node, "camera", cam, translate.KindPointer, "")
	}
	return nil
}

// applyInput applies one shader-style input value: a {"connect": path,
// "output": tag} object becomes a deferred link (empty path meaning an
// explicit unlink), an RGB triple, number, bool or string becomes a
// constant parameter.
func applyInput(node *render.Node, ctx *translate.Context, name string, value any) {
	switch v := value.(type) {
	case map[string]any:
		target, _ := v["connect"].(string)
		output, _ := v["output"].(string)
		ctx.AddConnection(node, name, target, translate.KindLink, output)
	case []any:
		if rgb, ok := scene.ToFloats(value); ok && len(rgb) == 3 {
			node.SetRGB(name, rgb[0], rgb[1], rgb[2])
		}
	case bool:
		node.SetBool(name, v)
	case string:
		node.SetStr(name, v)
	default:
		if f, ok := scene.ToFloat(value); ok {
			node.SetFlt(name, f)
		}
	}
}

// applyPrimvars copies the inherited primvar set onto the node as user
// parameters.
func applyPrimvars(node *render.Node, ctx *translate.Context, frame float64) {
	for _, a := range ctx.Primvars() {
		name := "user:" + a.PrimvarName()
		switch v := a.Get(frame).(type) {
		case bool:
			node.SetBool(name, v)
		case string:
			node.SetStr(name, v)
		case []any:
			if rgb, ok := scene.ToFloats(v); ok && len(rgb) == 3 {
				node.SetRGB(name, rgb[0], rgb[1], rgb[2])
			}
		default:
			if f, ok := scene.ToFloat(v); ok {
				node.SetFlt(name, f)
			}
		}
	}
}

// pathList normalizes a path-array attribute to the whitespace-separated
// form an array connection carries.
func pathList(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
