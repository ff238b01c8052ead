package bptree

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxLeafKeysShown caps the keys printed per leaf so wide trees stay readable.
const maxLeafKeysShown = 8

// ExportDOT renders the tree as a Graphviz digraph. Leaves are drawn on one
// rank and linked by dashed next edges.
func (t *BPTree) ExportDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph BPTree {")
	fmt.Fprintln(bw, "  graph [ranksep=0.8, nodesep=0.5, bgcolor=\"#ffffff\", rankdir=TB];")
	fmt.Fprintln(bw, "  node [shape=none, fontname=\"Helvetica\", fontsize=10];")
	fmt.Fprintln(bw, "  edge [arrowsize=0.8, color=\"#444444\"];")

	var leaves []nodeID
	err := t.levelOrder(func(id nodeID, depth int) error {
		n := t.nodes[id]
		fill := 100 * float64(len(n.keys)) / float64(t.maxKeys())
		if n.leaf {
			leaves = append(leaves, id)
			fmt.Fprintf(bw, "  n%d [label=<<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">"+
				"<TR><TD COLSPAN=\"2\" BGCOLOR=\"#D5E8D4\"><B>NODE %d (LEAF)</B><BR/><FONT POINT-SIZE=\"8\">Fill: %.1f%%</FONT></TD></TR>"+
				"<TR><TD BGCOLOR=\"#F5F5F5\" ALIGN=\"LEFT\">%s</TD><TD PORT=\"next\" BGCOLOR=\"#E1F5FE\">Next: %s</TD></TR></TABLE>>];\n",
				id, id, fill, leafLabel(n), nodeName(n.next))
			return nil
		}

		var cells strings.Builder
		for i, k := range n.keys {
			fmt.Fprintf(&cells, "<TD PORT=\"f%d\" BGCOLOR=\"#E1F5FE\">P:%d</TD><TD BGCOLOR=\"#FFFFFF\"><B>%.3f</B></TD>", i, n.children[i], k)
		}
		if len(n.children) > len(n.keys) {
			fmt.Fprintf(&cells, "<TD PORT=\"f%d\" BGCOLOR=\"#E1F5FE\">P:%d</TD>", len(n.keys), n.children[len(n.keys)])
		}
		fmt.Fprintf(bw, "  n%d [label=<<TABLE BORDER=\"0\" CELLBORDER=\"1\" CELLSPACING=\"0\" CELLPADDING=\"4\">"+
			"<TR><TD COLSPAN=\"%d\" BGCOLOR=\"#DAE8FC\"><B>NODE %d (INTERNAL, depth %d)</B><BR/><FONT POINT-SIZE=\"8\">Fill: %.1f%%</FONT></TD></TR>"+
			"<TR>%s</TR></TABLE>>];\n",
			id, 2*len(n.keys)+1, id, depth, fill, cells.String())
		for i, c := range n.children {
			fmt.Fprintf(bw, "  n%d:f%d -> n%d;\n", id, i, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(leaves) > 1 {
		fmt.Fprintln(bw, "  { rank=same;")
		for _, id := range leaves {
			fmt.Fprintf(bw, "    n%d;\n", id)
		}
		fmt.Fprintln(bw, "  }")
		for _, id := range leaves {
			if next := t.nodes[id].next; next != nilNode {
				fmt.Fprintf(bw, "  n%d:next -> n%d [style=dashed, color=\"#03A9F4\", constraint=false, tailclip=false];\n", id, next)
			}
		}
	}
	fmt.Fprintln(bw, "}")
	return errors.Wrap(bw.Flush(), "bptree: export dot")
}

func leafLabel(n *node) string {
	var sb strings.Builder
	for i, k := range n.keys {
		if i == maxLeafKeysShown {
			fmt.Fprintf(&sb, "<I>+%d more</I><BR/>", len(n.keys)-i)
			break
		}
		fmt.Fprintf(&sb, "<B>%.3f</B> <FONT COLOR=\"#666666\">[%d:%d]</FONT><BR/>", k, n.locs[i].BlockID, n.locs[i].Offset)
	}
	return sb.String()
}

func nodeName(id nodeID) string {
	if id == nilNode {
		return "NULL"
	}
	return fmt.Sprintf("%d", id)
}
