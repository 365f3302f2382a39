package rga

import "sort"

// Placement order: a pre-order walk from START where the children of
// each node (everything inserted directly after it) go in descending
// id order. Of two concurrent insertions after the same anchor, the
// larger id lands closer to the anchor; since the id order is total
// and replica-independent, every replica renders the same document.
//
// Nodes whose origin has not arrived yet ("orphans") still have to
// live somewhere deterministic: their subtrees go after all rooted
// nodes, roots in descending id order. The layout is a pure function
// of the stored node set, so convergence is unaffected; once the
// origin arrives the subtree snaps into its proper place.
func (r *Replica) placement() []*node {
	var all []*node
	present := make(map[ID]bool, r.nodes.Size())
	r.nodes.Range(func(id ID, n *node) bool {
		present[id] = true
		if !n.sentinel {
			all = append(all, n)
		}
		return true
	})

	children := make(map[ID][]*node, len(all))
	for _, n := range all {
		children[n.origin] = append(children[n.origin], n)
	}
	for _, kids := range children {
		sort.Slice(kids, func(i, j int) bool { return kids[j].id.Less(kids[i].id) })
	}

	order := make([]*node, 0, len(all))
	var stack []*node
	// kids are sorted descending; pushing them back-to-front makes the
	// largest id pop first, which yields the pre-order we want
	push := func(kids []*node) {
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}

	walk := func(roots []*node) {
		push(roots)
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			order = append(order, n)
			push(children[n.id])
		}
	}

	walk(children[StartID])

	if len(order) < len(all) {
		// anchors on END are malformed but must still be absorbed;
		// they share the orphan fallback
		var roots []*node
		for _, n := range all {
			if !present[n.origin] || n.origin == EndID {
				roots = append(roots, n)
			}
		}
		sort.Slice(roots, func(i, j int) bool { return roots[j].id.Less(roots[i].id) })
		walk(roots)
	}

	return order
}

// Runes renders the visible document.
func (r *Replica) Runes() []rune {
	order := r.placement()
	out := make([]rune, 0, len(order))
	for _, n := range order {
		if n.visible() {
			out = append(out, n.ch)
		}
	}
	return out
}

// String renders the visible document as a string.
func (r *Replica) String() string {
	return string(r.Runes())
}

// VisibleNodes returns the visible nodes in document order.
func (r *Replica) VisibleNodes() []Node {
	order := r.placement()
	out := make([]Node, 0, len(order))
	for _, n := range order {
		if n.visible() {
			out = append(out, n.snapshot())
		}
	}
	return out
}

func sortNodes(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID.Less(nodes[j].ID) })
}
