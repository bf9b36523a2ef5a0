package model

import (
	"encoding/json"
	"fmt"
)

// FeatureVector is a named candidate vector. It has no order of its own;
// a FeatureSchema imposes one.
type FeatureVector map[string]float64

// FeatureSchema is the ordered feature-name list frozen at training time.
type FeatureSchema struct {
	names []string
	index map[string]int
}

// NewFeatureSchema builds a schema, rejecting empty or duplicate names.
func NewFeatureSchema(names []string) (FeatureSchema, error) {
	if len(names) == 0 {
		return FeatureSchema{}, fmt.Errorf("feature schema must not be empty")
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return FeatureSchema{}, fmt.Errorf("feature %d has an empty name", i)
		}
		if _, dup := index[n]; dup {
			return FeatureSchema{}, fmt.Errorf("duplicate feature %q", n)
		}
		index[n] = i
	}
	return FeatureSchema{names: append([]string(nil), names...), index: index}, nil
}

// Names returns a copy of the ordered feature names.
func (s FeatureSchema) Names() []string {
	return append([]string(nil), s.names...)
}

func (s FeatureSchema) Len() int { return len(s.names) }

// Index returns the position of name, or -1.
func (s FeatureSchema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Alignment is the result of reindexing a candidate onto a schema.
type Alignment struct {
	Values  []float64
	Missing []string
	Extra   []string
}

// Align reindexes v to the schema. Schema features absent from v become 0
// and fields of v outside the schema are dropped. Aligning the vector
// rebuilt from the result yields the same values.
func (s FeatureSchema) Align(v FeatureVector) Alignment {
	out := Alignment{Values: make([]float64, len(s.names))}
	for i, n := range s.names {
		if val, ok := v[n]; ok {
			out.Values[i] = val
		} else {
			out.Missing = append(out.Missing, n)
		}
	}
	for n := range v {
		if _, ok := s.index[n]; !ok {
			out.Extra = append(out.Extra, n)
		}
	}
	return out
}

// Vector names values by the schema order.
func (s FeatureSchema) Vector(values []float64) FeatureVector {
	v := make(FeatureVector, len(s.names))
	for i, n := range s.names {
		if i < len(values) {
			v[n] = values[i]
		}
	}
	return v
}

func (s FeatureSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.names)
}

func (s *FeatureSchema) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := NewFeatureSchema(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
