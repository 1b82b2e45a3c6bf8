package model

// Contact is one record of a relationship snapshot as supplied by the
// contact-listing service. Metric fields are pointers so that "absent" can be
// told apart from zero; the normalizer decides how absent values resolve.
type Contact struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Precomputed metrics in [0,1]. When set they win over the raw values.
	Recency   *float64 `json:"recency,omitempty" yaml:"recency,omitempty"`
	Frequency *float64 `json:"frequency,omitempty" yaml:"frequency,omitempty"`

	// Raw metrics.
	DaysSinceContact *float64 `json:"days_since_contact,omitempty" yaml:"days_since_contact,omitempty"`
	MessagesPerDay   *float64 `json:"messages_per_day,omitempty" yaml:"messages_per_day,omitempty"`

	// Intensity is a comparative signal with no absolute scale. It is only
	// meaningful relative to the rest of the snapshot.
	Intensity *float64 `json:"intensity,omitempty" yaml:"intensity,omitempty"`

	// SizeHint in [0,1] overrides the frequency-derived display size.
	SizeHint *float64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// Float returns a pointer to v. Handy for building contacts in code and tests.
func Float(v float64) *float64 {
	return &v
}
