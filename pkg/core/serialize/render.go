package serialize

import (
	"fmt"
	"strings"

	"github.com/xlab/treeprint"
)

// Render draws a serialized tree for terminals, one node per line with its
// node id as metadata.
func Render(n *Node) string {
	if n == nil || n.IsEmpty() {
		return "(empty tree)\n"
	}
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s %s", n.NodeID, label(n)))
	addChildren(tree, n)
	return tree.String()
}

func addChildren(branch treeprint.Tree, n *Node) {
	for _, c := range n.Children {
		if c.Type == TypeLeaf {
			branch.AddMetaNode(c.NodeID.String(), label(c))
			continue
		}
		addChildren(branch.AddMetaBranch(c.NodeID.String(), label(c)), c)
	}
}

func label(n *Node) string {
	keys := make([]string, len(n.Keys))
	for i, k := range n.Keys {
		keys[i] = fmt.Sprint(k)
	}
	if n.Type == TypeLeaf {
		return fmt.Sprintf("%s [%s]", n.Type, strings.Join(keys, " "))
	}
	return fmt.Sprintf("%s [%s]", n.Type, strings.Join(keys, " | "))
}
