package ml

import (
	"encoding/json"
	"testing"
)

func sampleTree() DecisionTree {
	return NewDecisionTree([]TreeNode{
		{FeatureIdx: 0, Threshold: 0.5, LeftChild: 1, RightChild: 2},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true, Value: []float64{8, 2}},
		{FeatureIdx: 1, Threshold: 0.3, LeftChild: 3, RightChild: 4},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true, Value: []float64{5, 5}},
		{FeatureIdx: -1, LeftChild: -1, RightChild: -1, IsLeaf: true, Value: []float64{1, 9}},
	})
}

func TestDecisionTreeLeaf(t *testing.T) {
	tree := sampleTree()

	tests := []struct {
		features []float64
		want     []float64
	}{
		{[]float64{0.1, 0.9}, []float64{8, 2}},
		{[]float64{0.5, 0.9}, []float64{8, 2}},
		{[]float64{0.9, 0.3}, []float64{5, 5}},
		{[]float64{0.9, 0.8}, []float64{1, 9}},
	}
	for _, tt := range tests {
		leaf, err := tree.Leaf(tt.features)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if leaf.Value[0] != tt.want[0] || leaf.Value[1] != tt.want[1] {
			t.Fatalf("features %v: expected leaf %v, got %v", tt.features, tt.want, leaf.Value)
		}
	}
}

func TestDecisionTreeLeafErrors(t *testing.T) {
	if _, err := (DecisionTree{}).Leaf([]float64{1}); err == nil {
		t.Fatal("expected error for empty tree")
	}
	if _, err := sampleTree().Leaf([]float64{0.9}); err == nil {
		t.Fatal("expected error for short feature vector")
	}
}

func TestDecisionTreeJSONRoundTrip(t *testing.T) {
	payload, err := json.Marshal(sampleTree())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded DecisionTree
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.nodes) != 5 {
		t.Fatalf("expected 5 nodes, got %d", len(decoded.nodes))
	}
	if err := decoded.validate(2, 2); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestDecisionTreeValidate(t *testing.T) {
	cyclic := NewDecisionTree([]TreeNode{
		{FeatureIdx: 0, Threshold: 0.5, LeftChild: 0, RightChild: 1},
		{IsLeaf: true, Value: []float64{1, 1}},
	})
	if err := cyclic.validate(1, 2); err == nil {
		t.Fatal("expected error for a node pointing back at itself")
	}
	if err := sampleTree().validate(1, 2); err == nil {
		t.Fatal("expected error for a split on a missing feature")
	}
	if err := sampleTree().validate(2, 1); err == nil {
		t.Fatal("expected error for wrong leaf width")
	}
}

func TestRandomForestPredictProba(t *testing.T) {
	forest := &RandomForest{ClassLabels: []string{"No", "Yes"}, Trees: []DecisionTree{sampleTree(), sampleTree()}}
	proba, err := forest.PredictProba([]float64{0.9, 0.8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proba[0] != 0.1 || proba[1] != 0.9 {
		t.Fatalf("unexpected probabilities: %v", proba)
	}
}

func TestGradientBoostingPredictProba(t *testing.T) {
	tree := NewDecisionTree([]TreeNode{
		{FeatureIdx: 0, Threshold: 0.5, LeftChild: 1, RightChild: 2},
		{IsLeaf: true, Value: []float64{-2}},
		{IsLeaf: true, Value: []float64{2}},
	})
	gb := &GradientBoosting{ClassLabels: []string{"No", "Yes"}, LearningRate: 1, Trees: []DecisionTree{tree}}

	low, err := gb.PredictProba([]float64{0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	high, err := gb.PredictProba([]float64{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if low[1] >= 0.5 || high[1] <= 0.5 {
		t.Fatalf("expected positive class below/above 0.5, got %v and %v", low, high)
	}
	if sum := high[0] + high[1]; sum < 1-1e-12 || sum > 1+1e-12 {
		t.Fatalf("probabilities sum to %v", sum)
	}
}
