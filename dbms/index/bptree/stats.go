package bptree

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// levelOrder visits every node breadth-first with its depth (root = 0).
func (t *BPTree) levelOrder(fn func(id nodeID, depth int) error) error {
	if t.root == nilNode {
		return nil
	}
	type item struct {
		id    nodeID
		depth int
	}
	seen := make([]bool, len(t.nodes))
	queue := []item{{t.root, 0}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		if it.id < 0 || int(it.id) >= len(t.nodes) {
			return errors.Wrapf(ErrStructuralInvariant, "node id %d out of range", it.id)
		}
		if seen[it.id] {
			return errors.Wrapf(ErrStructuralInvariant, "node %d reachable twice", it.id)
		}
		seen[it.id] = true
		if err := fn(it.id, it.depth); err != nil {
			return err
		}
		for _, c := range t.nodes[it.id].children {
			queue = append(queue, item{c, it.depth + 1})
		}
	}
	return nil
}

type NodeCounts struct {
	Total    int
	Internal int
	Leaf     int
}

// Stats summarises the tree shape.
type Stats struct {
	Order    int
	Entries  int
	Height   int
	Nodes    NodeCounts
	RootKeys []float32
}

// Height is the number of levels, 0 for an empty tree.
func (t *BPTree) Height() int {
	h := 0
	for cur := t.root; cur != nilNode; h++ {
		n := t.nodes[cur]
		if n.leaf || len(n.children) == 0 {
			return h + 1
		}
		cur = n.children[0]
	}
	return h
}

func (t *BPTree) NodeCounts() NodeCounts {
	var c NodeCounts
	_ = t.levelOrder(func(id nodeID, _ int) error {
		c.Total++
		if t.nodes[id].leaf {
			c.Leaf++
		} else {
			c.Internal++
		}
		return nil
	})
	return c
}

func (t *BPTree) RootKeys() []float32 {
	if t.root == nilNode {
		return nil
	}
	return slices.Clone(t.nodes[t.root].keys)
}

func (t *BPTree) Stats() Stats {
	return Stats{
		Order:    t.order,
		Entries:  t.size,
		Height:   t.Height(),
		Nodes:    t.NodeCounts(),
		RootKeys: t.RootKeys(),
	}
}
