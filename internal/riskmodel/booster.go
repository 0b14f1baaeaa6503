// Package riskmodel provides trained risk models for the classifier: inference
// over a LightGBM JSON dump, lazy artifact loading and a remote model client.
package riskmodel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/castlemilk/dietplanner/internal/classifier"
	"github.com/castlemilk/dietplanner/internal/clinical"
)

// DecisionThreshold is the probability at or above which a record is Abnormal.
const DecisionThreshold = 0.5

// ErrShapeMismatch is returned when a model's features do not line up with
// the clinical feature record.
var ErrShapeMismatch = errors.New("model feature shape mismatch")

// dump mirrors the subset of LightGBM's dump_model() JSON that inference needs.
type dump struct {
	Objective    string     `json:"objective"`
	FeatureNames []string   `json:"feature_names"`
	TreeInfo     []treeInfo `json:"tree_info"`
}

type treeInfo struct {
	TreeIndex     int      `json:"tree_index"`
	TreeStructure treeNode `json:"tree_structure"`
}

type treeNode struct {
	SplitFeature *int      `json:"split_feature"`
	Threshold    float64   `json:"threshold"`
	DecisionType string    `json:"decision_type"`
	DefaultLeft  bool      `json:"default_left"`
	LeftChild    *treeNode `json:"left_child"`
	RightChild   *treeNode `json:"right_child"`
	LeafValue    *float64  `json:"leaf_value"`
}

// Booster evaluates a gradient-boosted tree ensemble for binary classification.
type Booster struct {
	// columns[i] is the clinical feature vector index of model feature i.
	columns []int
	trees   []*treeNode
	sigmoid float64
}

// LoadBooster parses a LightGBM JSON model dump.
func LoadBooster(r io.Reader) (*Booster, error) {
	var d dump
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode model dump: %w", err)
	}
	return newBooster(d)
}

func newBooster(d dump) (*Booster, error) {
	sigmoid, err := parseObjective(d.Objective)
	if err != nil {
		return nil, err
	}

	columns, err := alignFeatures(d.FeatureNames)
	if err != nil {
		return nil, err
	}

	if len(d.TreeInfo) == 0 {
		return nil, errors.New("model dump has no trees")
	}
	trees := make([]*treeNode, len(d.TreeInfo))
	for i := range d.TreeInfo {
		root := &d.TreeInfo[i].TreeStructure
		if err := validateTree(root, len(columns)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = root
	}

	return &Booster{columns: columns, trees: trees, sigmoid: sigmoid}, nil
}

// parseObjective accepts "binary" and "binary sigmoid:<k>".
func parseObjective(obj string) (float64, error) {
	parts := strings.Fields(obj)
	if len(parts) == 0 || parts[0] != "binary" {
		return 0, fmt.Errorf("unsupported objective %q", obj)
	}
	sigmoid := 1.0
	for _, p := range parts[1:] {
		if v, ok := strings.CutPrefix(p, "sigmoid:"); ok {
			s, err := strconv.ParseFloat(v, 64)
			if err != nil || s <= 0 {
				return 0, fmt.Errorf("invalid sigmoid parameter %q", v)
			}
			sigmoid = s
		}
	}
	return sigmoid, nil
}

func alignFeatures(names []string) ([]int, error) {
	if len(names) != len(clinical.Fields) {
		return nil, fmt.Errorf("%w: model has %d features, want %d", ErrShapeMismatch, len(names), len(clinical.Fields))
	}
	index := make(map[string]int, len(clinical.Fields))
	for i, f := range clinical.Fields {
		index[string(f)] = i
	}

	columns := make([]int, len(names))
	seen := make(map[int]bool, len(names))
	for i, name := range names {
		col, ok := index[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown feature %q", ErrShapeMismatch, name)
		}
		if seen[col] {
			return nil, fmt.Errorf("%w: duplicate feature %q", ErrShapeMismatch, name)
		}
		seen[col] = true
		columns[i] = col
	}
	return columns, nil
}

func validateTree(n *treeNode, numFeatures int) error {
	if n.LeafValue != nil {
		return nil
	}
	if n.SplitFeature == nil {
		return errors.New("node is neither split nor leaf")
	}
	if *n.SplitFeature < 0 || *n.SplitFeature >= numFeatures {
		return fmt.Errorf("%w: split feature %d out of range", ErrShapeMismatch, *n.SplitFeature)
	}
	if n.DecisionType != "" && n.DecisionType != "<=" {
		return fmt.Errorf("unsupported decision type %q", n.DecisionType)
	}
	if n.LeftChild == nil || n.RightChild == nil {
		return errors.New("split node missing a child")
	}
	if err := validateTree(n.LeftChild, numFeatures); err != nil {
		return err
	}
	return validateTree(n.RightChild, numFeatures)
}

// RawScore sums the leaf values reached by vec, which is in clinical.Fields order.
func (b *Booster) RawScore(vec []float64) (float64, error) {
	if len(vec) != len(clinical.Fields) {
		return 0, fmt.Errorf("%w: got %d values", ErrShapeMismatch, len(vec))
	}
	sum := 0.0
	for _, root := range b.trees {
		n := root
		for n.LeafValue == nil {
			v := vec[b.columns[*n.SplitFeature]]
			switch {
			case math.IsNaN(v) && n.DefaultLeft:
				n = n.LeftChild
			case math.IsNaN(v):
				n = n.RightChild
			case v <= n.Threshold:
				n = n.LeftChild
			default:
				n = n.RightChild
			}
		}
		sum += *n.LeafValue
	}
	return sum, nil
}

// Probability returns the Abnormal class probability.
func (b *Booster) Probability(vec []float64) (float64, error) {
	raw, err := b.RawScore(vec)
	if err != nil {
		return 0, err
	}
	return 1 / (1 + math.Exp(-b.sigmoid*raw)), nil
}

// Predict implements classifier.RiskModel.
func (b *Booster) Predict(_ context.Context, rec clinical.FeatureRecord) (classifier.RiskLabel, error) {
	vec, ok := rec.Vector()
	if !ok {
		return "", fmt.Errorf("%w: record is incomplete", ErrShapeMismatch)
	}
	p, err := b.Probability(vec)
	if err != nil {
		return "", err
	}
	if p >= DecisionThreshold {
		return classifier.RiskAbnormal, nil
	}
	return classifier.RiskNormal, nil
}
