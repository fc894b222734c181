package scene

// Iterator walks a hierarchy in pre+post order: every element is visited
// once on the way down and once on the way back up. The double visit lets
// callers maintain a per-depth stack (push on pre, pop on post) in
// lock-step with the hierarchy.
type Iterator struct {
	stack  []iterVisit
	cur    *Element
	post   bool
	pruned bool
}

type iterVisit struct {
	el   *Element
	post bool
}

// NewIterator starts a pre+post order walk rooted at el. The root itself
// is visited.
func NewIterator(root *Element) *Iterator {
	return &Iterator{stack: []iterVisit{{el: root}}}
}

// Next advances to the next visit. It returns false when the walk is done.
func (it *Iterator) Next() bool {
	// Expand the previous pre-visit: queue the post visit, then the
	// children in order. A prune drops both.
	if it.cur != nil && !it.post && !it.pruned {
		it.stack = append(it.stack, iterVisit{el: it.cur, post: true})
		for i := len(it.cur.children) - 1; i >= 0; i-- {
			it.stack = append(it.stack, iterVisit{el: it.cur.children[i]})
		}
	}
	it.pruned = false
	if len(it.stack) == 0 {
		it.cur = nil
		return false
	}
	top := it.stack[len(it.stack)-1]
	it.stack = it.stack[:len(it.stack)-1]
	it.cur, it.post = top.el, top.post
	return true
}

// Element returns the element of the current visit.
func (it *Iterator) Element() *Element { return it.cur }

// IsPostVisit reports whether the current visit is the bottom-up one.
func (it *Iterator) IsPostVisit() bool { return it.post }

// PruneChildren skips the current element's descendants and its own post
// visit. Only meaningful on a pre-visit; callers that pushed per-depth
// state for this element must pop it themselves at the prune site.
func (it *Iterator) PruneChildren() {
	if !it.post {
		it.pruned = true
	}
}
