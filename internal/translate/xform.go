package translate

import (
	"github.com/agentic-research/lumen/internal/render"
	"github.com/agentic-research/lumen/internal/scene"
)

// AttrMatrix is the local-transform attribute: 16 row-major values,
// possibly time-sampled.
const AttrMatrix = "xform:matrix"

// XformCache caches local-to-world transforms for one explicit time
// value. A cache is owned by exactly one worker and never shared.
type XformCache struct {
	frame float64
	world map[string]render.Matrix
}

func NewXformCache(frame float64) *XformCache {
	return &XformCache{frame: frame, world: make(map[string]render.Matrix)}
}

func (c *XformCache) Frame() float64 { return c.frame }

// LocalToWorld accumulates the transform from the root down to el,
// caching every level on the way.
func (c *XformCache) LocalToWorld(el *scene.Element) render.Matrix {
	if el == nil {
		return render.Identity()
	}
	if m, ok := c.world[el.Path()]; ok {
		return m
	}
	m := c.LocalToWorld(el.Parent()).Mul(localMatrix(el, c.frame))
	c.world[el.Path()] = m
	return m
}

func localMatrix(el *scene.Element, frame float64) render.Matrix {
	v := el.AttrValue(AttrMatrix, frame)
	if v == nil {
		return render.Identity()
	}
	values, ok := scene.ToFloats(v)
	if !ok {
		return render.Identity()
	}
	m, ok := render.MatrixFromSlice(values)
	if !ok {
		return render.Identity()
	}
	return m
}

// transformTimeVarying reports whether el's own local transform is
// animated.
func transformTimeVarying(el *scene.Element) bool {
	a := el.Attr(AttrMatrix)
	return a != nil && a.TimeVarying()
}

// ComputeMatrices samples el's local-to-world transform. Without motion
// blur, or for a static hierarchy, it returns a single key at the current
// frame. With motion blur and an animated transform anywhere on el's
// ancestor chain it samples the open shutter interval: every authored
// sample time inside it plus the two boundary keys.
func ComputeMatrices(el *scene.Element, time TimeSettings, ctx *Context) []render.Matrix {
	animated := transformTimeVarying(el)
	if time.MotionBlur && !animated {
		for parent := el.Parent(); parent != nil; parent = parent.Parent() {
			if transformTimeVarying(parent) {
				animated = true
				break
			}
		}
	}

	if !time.MotionBlur || !animated {
		return []render.Matrix{ctx.XformCache(time.Frame).LocalToWorld(el)}
	}

	lo, hi := time.Start(), time.End()
	var sampleTimes []float64
	if a := el.Attr(AttrMatrix); a != nil {
		sampleTimes = a.TimesInInterval(lo, hi)
	}
	numKeys := len(sampleTimes) + 2
	step := (hi - lo) / float64(numKeys-1)
	keys := make([]render.Matrix, numKeys)
	t := lo
	for i := range keys {
		keys[i] = ctx.XformCache(t).LocalToWorld(el)
		t += step
	}
	return keys
}

// ApplyMatrix writes el's transform onto node: the precomputed keys when
// the context carries them (dispatched jobs), a fresh sampling otherwise.
// Multiple keys imply motion blur, which also sets the motion interval
// parameters.
func ApplyMatrix(el *scene.Element, node *render.Node, time TimeSettings, ctx *Context) {
	keys := ctx.Matrices()
	if keys == nil {
		keys = ComputeMatrices(el, time, ctx)
	}
	node.SetMatrices("matrix", keys)
	if len(keys) > 1 {
		node.SetFlt("motion_start", time.MotionStart)
		node.SetFlt("motion_end", time.MotionEnd)
	}
}
