package render

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// builtinTypes categorizes the node types the built-in converters emit.
// CreateNode accepts unknown types too; they just stay out of the mask
// index.
var builtinTypes = map[string]Mask{
	"polymesh":         MaskShape,
	"instance":         MaskShape,
	"persp_camera":     MaskCamera,
	"point_light":      MaskLight,
	"distant_light":    MaskLight,
	"standard_surface": MaskShader,
	"image":            MaskShader,
	"user_data_rgb":    MaskShader,
	"options":          MaskOptions,
}

// Universe is the shared destination namespace. Creation and lookup are
// mutex-guarded: multiple workers create into it concurrently during
// traversal.
//
// The mask index is a roaring bitmap per category over stable uint32 node
// ids, so category queries avoid a full scan.
type Universe struct {
	mu        sync.Mutex
	byName    map[string]*Node
	byID      map[uint32]*Node
	typeMasks map[string]Mask
	maskIndex map[Mask]*roaring.Bitmap
	nextID    uint32
}

func NewUniverse() *Universe {
	u := &Universe{
		byName:    make(map[string]*Node),
		byID:      make(map[uint32]*Node),
		typeMasks: make(map[string]Mask, len(builtinTypes)),
		maskIndex: make(map[Mask]*roaring.Bitmap),
	}
	for typeName, mask := range builtinTypes {
		u.typeMasks[typeName] = mask
	}
	return u
}

// RegisterNodeType adds or overrides the category of a node type.
func (u *Universe) RegisterNodeType(typeName string, mask Mask) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.typeMasks[typeName] = mask
}

// TypeMask returns the category of a node type (0 for unknown types).
func (u *Universe) TypeMask(typeName string) Mask {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.typeMasks[typeName]
}

// CreateNode creates a node under a globally-unique name. Creating a name
// twice returns the existing node rather than a duplicate.
func (u *Universe) CreateNode(typeName, name string) *Node {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.byName[name]; ok {
		return existing
	}
	n := &Node{
		id:       u.nextID,
		name:     name,
		typeName: typeName,
		params:   make(map[string]any),
		links:    make(map[string]ChannelLink),
	}
	u.nextID++
	u.byName[name] = n
	u.byID[n.id] = n
	if mask, ok := u.typeMasks[typeName]; ok {
		bm := u.maskIndex[mask]
		if bm == nil {
			bm = roaring.New()
			u.maskIndex[mask] = bm
		}
		bm.Add(n.id)
	}
	return n
}

// Find looks a node up by name, nil when absent.
func (u *Universe) Find(name string) *Node {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byName[name]
}

// Destroy removes a node from the namespace and every index.
func (u *Universe) Destroy(n *Node) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.byName, n.name)
	delete(u.byID, n.id)
	if mask, ok := u.typeMasks[n.typeName]; ok {
		if bm := u.maskIndex[mask]; bm != nil {
			bm.Remove(n.id)
		}
	}
}

// Len returns the number of live nodes.
func (u *Universe) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.byID)
}

// NodesByMask returns every node whose category intersects mask, in
// creation order.
func (u *Universe) NodesByMask(mask Mask) []*Node {
	u.mu.Lock()
	defer u.mu.Unlock()
	merged := roaring.New()
	for m, bm := range u.maskIndex {
		if m&mask != 0 {
			merged.Or(bm)
		}
	}
	out := make([]*Node, 0, merged.GetCardinality())
	it := merged.Iterator()
	for it.HasNext() {
		if n := u.byID[it.Next()]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Nodes returns every live node in creation order.
func (u *Universe) Nodes() []*Node {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]*Node, 0, len(u.byID))
	for _, n := range u.byID {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
