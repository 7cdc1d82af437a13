package serialize

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"distritree/pkg/common"
	"distritree/pkg/core/bptree"
	"distritree/pkg/core/nodestore"
)

func scenarioTree(t *testing.T) *bptree.Tree {
	t.Helper()
	tree, err := bptree.New(nodestore.New(), 4, nil)
	require.NoError(t, err)
	for _, k := range []common.KeyType{10, 20, 5, 6, 12, 30, 7, 17} {
		_, err := tree.Insert(k, common.ValueType(fmt.Sprintf("v%d", k)))
		require.NoError(t, err)
	}
	return tree
}

func TestEmptySentinel(t *testing.T) {
	n, err := Tree(nodestore.New(), common.NilNode)
	require.NoError(t, err)
	require.True(t, n.IsEmpty())

	b, err := json.Marshal(n)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"Empty","keys":[]}`, string(b))
	require.Equal(t, -1, Shape(n).Height)
	require.Equal(t, "(empty tree)\n", Render(n))
}

func TestSerializeScenario(t *testing.T) {
	tree := scenarioTree(t)
	n, err := Tree(tree.Store(), tree.Root())
	require.NoError(t, err)

	require.Equal(t, TypeInternal, n.Type)
	require.Equal(t, []common.KeyType{10, 20}, n.Keys)
	require.Len(t, n.Children, 3)
	require.Nil(t, n.Values)

	leaf := n.Children[1]
	require.Equal(t, TypeLeaf, leaf.Type)
	require.Equal(t, common.NodeID(2), leaf.NodeID)
	require.Equal(t, []Value{
		{NodeID: 2, Key: 10, Value: "v10"},
		{NodeID: 2, Key: 12, Value: "v12"},
		{NodeID: 2, Key: 17, Value: "v17"},
	}, leaf.Values)

	require.Equal(t, Stats{Height: 1, Nodes: 4, Internals: 1, Leaves: 3, Keys: 8}, Shape(n))
}

func TestSerializeJSONShape(t *testing.T) {
	tree, err := bptree.New(nodestore.New(), 4, nil)
	require.NoError(t, err)
	for _, k := range []common.KeyType{10, 20, 5, 6} {
		_, err := tree.Insert(k, common.ValueType("x"))
		require.NoError(t, err)
	}

	n, err := Tree(tree.Store(), tree.Root())
	require.NoError(t, err)
	b, err := json.Marshal(n)
	require.NoError(t, err)

	require.JSONEq(t, `{
		"type": "Internal", "node_id": "node_3", "keys": [10],
		"children": [
			{"type": "Leaf", "node_id": "node_1", "keys": [5, 6], "values": [
				{"node_id": "node_1", "key": 5, "value": "x"},
				{"node_id": "node_1", "key": 6, "value": "x"}]},
			{"type": "Leaf", "node_id": "node_2", "keys": [10, 20], "values": [
				{"node_id": "node_2", "key": 10, "value": "x"},
				{"node_id": "node_2", "key": 20, "value": "x"}]}
		]}`, string(b))

	var back Node
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, common.NodeID(3), back.NodeID)
	require.Equal(t, common.NodeID(2), back.Children[1].Values[0].NodeID)
}

func TestSerializeDoesNotShareKeySlices(t *testing.T) {
	tree := scenarioTree(t)
	n, err := Tree(tree.Store(), tree.Root())
	require.NoError(t, err)

	n.Keys[0] = -1
	root, err := tree.Store().Get(tree.Root())
	require.NoError(t, err)
	require.Equal(t, common.KeyType(10), root.Keys[0])
}

func TestRenderListsEveryNode(t *testing.T) {
	tree := scenarioTree(t)
	n, err := Tree(tree.Store(), tree.Root())
	require.NoError(t, err)

	out := Render(n)
	require.Contains(t, out, "node_3 Internal [10 | 20]")
	require.Contains(t, out, "[node_1]")
	require.Contains(t, out, "Leaf [5 6 7]")
	require.Contains(t, out, "Leaf [20 30]")
}
