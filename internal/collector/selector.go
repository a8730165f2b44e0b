package collector

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// MatchExpression evaluates a single set-based requirement against the
// observed label value. observed is nil when the key is absent from the
// object's labels.
//
// Per the label-selector semantics ares follows, In and NotIn both require
// the key to be present: an absent key never satisfies NotIn.
func MatchExpression(expr metav1.LabelSelectorRequirement, observed *string) bool {
	switch expr.Operator {
	case metav1.LabelSelectorOpIn:
		return observed != nil && containsValue(expr.Values, *observed)
	case metav1.LabelSelectorOpNotIn:
		return observed != nil && !containsValue(expr.Values, *observed)
	case metav1.LabelSelectorOpExists:
		return observed != nil
	case metav1.LabelSelectorOpDoesNotExist:
		return observed == nil
	default:
		return false
	}
}

// MatchesAll reports whether labels satisfy every equality constraint and
// every expression. Labels and expressions together define the match: all of
// them must hold.
func MatchesAll(labels map[string]string, matchLabels map[string]string, matchExpressions []metav1.LabelSelectorRequirement) bool {
	for key, want := range matchLabels {
		got, ok := labels[key]
		if !ok || got != want {
			return false
		}
	}
	for _, expr := range matchExpressions {
		var observed *string
		if v, ok := labels[expr.Key]; ok {
			observed = &v
		}
		if !MatchExpression(expr, observed) {
			return false
		}
	}
	return true
}

func containsValue(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
