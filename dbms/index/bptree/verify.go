package bptree

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

const keyEpsilon = 1e-6

// Violation rules.
const (
	RuleRootParent    = "root-parent"
	RuleLeafChildren  = "leaf-children"
	RuleLeafLocations = "leaf-locations"
	RuleChildCount    = "child-count"
	RuleChildParent   = "child-parent"
	RuleKeyOrder      = "key-order"
	RuleOccupancy     = "occupancy"
	RuleLeafChain     = "leaf-chain"
	RuleUnreachable   = "unreachable"
)

// Violation is one broken invariant found by Verify.
type Violation struct {
	Node   int
	Rule   string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("node %d: %s: %s", v.Node, v.Rule, v.Detail)
}

// Verify walks the tree breadth-first and reports every broken invariant.
// It never stops at the first one.
func (t *BPTree) Verify() []Violation {
	var out []Violation
	report := func(id nodeID, rule, format string, args ...any) {
		v := Violation{Node: int(id), Rule: rule, Detail: fmt.Sprintf(format, args...)}
		log.Warnf("VERIFY %s", v)
		out = append(out, v)
	}
	if t.root == nilNode {
		return nil
	}
	if p := t.nodes[t.root].parent; p != nilNode {
		report(t.root, RuleRootParent, "root has parent %d", p)
	}

	// An internal split of an even order leaves order/2-1 keys on the right.
	minKeys, maxKeys := (t.order-1)/2, t.maxKeys()

	seen := make([]bool, len(t.nodes))
	var leaves []nodeID
	queue := []nodeID{t.root}
	seen[t.root] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := t.nodes[id]

		if n.leaf {
			leaves = append(leaves, id)
			if len(n.children) != 0 {
				report(id, RuleLeafChildren, "leaf has %d children", len(n.children))
			}
			if len(n.keys) != len(n.locs) {
				report(id, RuleLeafLocations, "%d keys, %d locations", len(n.keys), len(n.locs))
			}
		} else {
			if len(n.children) != len(n.keys)+1 {
				report(id, RuleChildCount, "%d keys, %d children", len(n.keys), len(n.children))
			}
			for _, c := range n.children {
				if c < 0 || int(c) >= len(t.nodes) {
					report(id, RuleChildParent, "child id %d out of range", c)
					continue
				}
				if p := t.nodes[c].parent; p != id {
					report(c, RuleChildParent, "parent is %d, reachable from %d", p, id)
				}
				if seen[c] {
					report(c, RuleChildParent, "reachable twice, again from %d", id)
					continue
				}
				seen[c] = true
				queue = append(queue, c)
			}
		}

		for i := 1; i < len(n.keys); i++ {
			if n.keys[i] < n.keys[i-1]-keyEpsilon {
				report(id, RuleKeyOrder, "keys[%d]=%g < keys[%d]=%g", i, n.keys[i], i-1, n.keys[i-1])
			}
		}
		if id != t.root && (len(n.keys) < minKeys || len(n.keys) > maxKeys) {
			report(id, RuleOccupancy, "%d keys, want %d..%d", len(n.keys), minKeys, maxKeys)
		}
	}

	for id := range t.nodes {
		if !seen[id] {
			report(nodeID(id), RuleUnreachable, "not reachable from the root")
		}
	}

	// Level order visits leaves left to right, which must match the chain.
	for i, id := range leaves {
		want := nilNode
		if i+1 < len(leaves) {
			want = leaves[i+1]
		}
		if next := t.nodes[id].next; next != want {
			report(id, RuleLeafChain, "next is %d, want %d", next, want)
		}
	}
	return out
}
