package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecisionTree is a fitted binary tree stored as a flat node array with the
// root at index 0.
type DecisionTree struct {
	nodes []TreeNode
}

// TreeNode is one split or leaf. Value holds the leaf's class counts for
// forests, or a single raw score for boosted trees.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	IsLeaf     bool      `json:"is_leaf"`
	Value      []float64 `json:"value,omitempty"`
}

// NewDecisionTree wraps a node array.
func NewDecisionTree(nodes []TreeNode) DecisionTree {
	return DecisionTree{nodes: append([]TreeNode(nil), nodes...)}
}

func (dt DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Nodes []TreeNode `json:"nodes"`
	}{dt.nodes})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var payload struct {
		Nodes []TreeNode `json:"nodes"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	dt.nodes = payload.Nodes
	return nil
}

// Leaf walks the tree for one feature vector. Samples with
// features[idx] <= threshold go left.
func (dt DecisionTree) Leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, errors.New("empty tree")
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
	return TreeNode{}, errors.New("tree contains a cycle")
}

func (dt DecisionTree) validate(featureCount, valueLen int) error {
	if len(dt.nodes) == 0 {
		return errors.New("empty tree")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			if len(node.Value) != valueLen {
				return fmt.Errorf("leaf %d has %d values, want %d", i, len(node.Value), valueLen)
			}
			for _, v := range node.Value {
				if valueLen > 1 && v < 0 {
					return fmt.Errorf("leaf %d has a negative class weight", i)
				}
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return fmt.Errorf("node %d splits on feature %d of %d", i, node.FeatureIdx, featureCount)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.nodes) ||
			node.RightChild <= i || node.RightChild >= len(dt.nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}
