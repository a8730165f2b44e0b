package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// RecordSpec defines the desired state of a managed DNS record.
// Exactly one of Value and ValueFrom must be set: Value pins the record to a
// static list of values, ValueFrom derives the values from live cluster state.
type RecordSpec struct {
	// FQDN is the fully qualified domain name the record is created under.
	FQDN string `json:"fqdn"`

	// TTL for the record in seconds.
	TTL int64 `json:"ttl"`

	// Type is the DNS record type, e.g. "A" or "CNAME". Defaults to "A"
	// when values are derived from a selector.
	Type string `json:"type,omitempty"`

	// Value is a static list of record values.
	// +optional
	Value []string `json:"value,omitempty"`

	// ValueFrom derives the record values from a dynamic source.
	// +optional
	ValueFrom *RecordValueFrom `json:"valueFrom,omitempty"`
}

// RecordValueFrom selects a dynamic source for record values. Exactly one
// member must be set.
type RecordValueFrom struct {
	// PodSelector derives values from the external addresses of Nodes
	// hosting the selected Pods.
	// +optional
	PodSelector *PodSelector `json:"podSelector,omitempty"`
}

// PodSelector selects Pods by labels and expressions, following the
// matchLabels/matchExpressions convention. Both constraints must hold for a
// Pod to be selected.
type PodSelector struct {
	// +optional
	MatchLabels map[string]string `json:"matchLabels,omitempty"`
	// +optional
	MatchExpressions []metav1.LabelSelectorRequirement `json:"matchExpressions,omitempty"`
}

// +kubebuilder:object:root=true

// Record is a DNS record managed by ares.
type Record struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec RecordSpec `json:"spec,omitempty"`
}

// +kubebuilder:object:root=true

// RecordList contains a list of Record.
type RecordList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Record `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Record{}, &RecordList{})
}
