package collector

import (
	"testing"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func strptr(s string) *string { return &s }

func TestMatchExpression(t *testing.T) {
	tests := []struct {
		name     string
		expr     metav1.LabelSelectorRequirement
		observed *string
		want     bool
	}{
		{"In present and contained", requirement("app", metav1.LabelSelectorOpIn, "nginx", "apache"), strptr("nginx"), true},
		{"In present not contained", requirement("app", metav1.LabelSelectorOpIn, "nginx"), strptr("caddy"), false},
		{"In absent", requirement("app", metav1.LabelSelectorOpIn, "nginx"), nil, false},
		{"NotIn present not contained", requirement("app", metav1.LabelSelectorOpNotIn, "nginx"), strptr("caddy"), true},
		{"NotIn present contained", requirement("app", metav1.LabelSelectorOpNotIn, "nginx"), strptr("nginx"), false},
		// Absence does not satisfy NotIn; the key must be present.
		{"NotIn absent", requirement("app", metav1.LabelSelectorOpNotIn, "nginx"), nil, false},
		{"Exists present", requirement("app", metav1.LabelSelectorOpExists), strptr("anything"), true},
		{"Exists absent", requirement("app", metav1.LabelSelectorOpExists), nil, false},
		{"DoesNotExist absent", requirement("app", metav1.LabelSelectorOpDoesNotExist), nil, true},
		{"DoesNotExist present", requirement("app", metav1.LabelSelectorOpDoesNotExist), strptr("x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchExpression(tt.expr, tt.observed); got != tt.want {
				t.Errorf("MatchExpression(%v, %v): got %v, want %v", tt.expr, tt.observed, got, tt.want)
			}
		})
	}
}

func requirement(key string, op metav1.LabelSelectorOperator, values ...string) metav1.LabelSelectorRequirement {
	return metav1.LabelSelectorRequirement{Key: key, Operator: op, Values: values}
}

func TestMatchesAll(t *testing.T) {
	labels := map[string]string{"app": "nginx", "tier": "frontend"}

	tests := []struct {
		name        string
		matchLabels map[string]string
		expressions []metav1.LabelSelectorRequirement
		want        bool
	}{
		{"empty selector matches", nil, nil, true},
		{"labels match", map[string]string{"app": "nginx"}, nil, true},
		{"labels mismatch", map[string]string{"app": "apache"}, nil, false},
		{"labels missing key", map[string]string{"zone": "eu"}, nil, false},
		{"expressions match", nil, []metav1.LabelSelectorRequirement{
			requirement("app", metav1.LabelSelectorOpIn, "nginx"),
			requirement("zone", metav1.LabelSelectorOpDoesNotExist),
		}, true},
		{"one expression fails", nil, []metav1.LabelSelectorRequirement{
			requirement("app", metav1.LabelSelectorOpIn, "nginx"),
			requirement("tier", metav1.LabelSelectorOpNotIn, "frontend"),
		}, false},
		{"labels and expressions both required", map[string]string{"app": "nginx"}, []metav1.LabelSelectorRequirement{
			requirement("missing", metav1.LabelSelectorOpExists),
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesAll(labels, tt.matchLabels, tt.expressions); got != tt.want {
				t.Errorf("MatchesAll: got %v, want %v", got, tt.want)
			}
		})
	}
}
