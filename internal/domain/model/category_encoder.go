package model

import (
	"encoding/json"
	"fmt"
	"slices"
)

// UnseenCategoryCode is the code for any category absent at training time.
const UnseenCategoryCode = -1

// CategoryEncoder maps category strings to integer codes. Codes are indexes
// into the sorted class list. It is immutable once built.
type CategoryEncoder struct {
	classes []string
	index   map[string]int
}

// FitCategoryEncoder builds an encoder over the distinct values.
func FitCategoryEncoder(values []string) *CategoryEncoder {
	classes := slices.Clone(values)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	return newCategoryEncoder(classes)
}

func newCategoryEncoder(classes []string) *CategoryEncoder {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	return &CategoryEncoder{classes: classes, index: index}
}

// Encode returns the trained code for value, or UnseenCategoryCode and
// false when value was not seen during fitting.
func (e *CategoryEncoder) Encode(value string) (int, bool) {
	code, ok := e.index[value]
	if !ok {
		return UnseenCategoryCode, false
	}
	return code, true
}

// Classes returns a copy of the sorted vocabulary.
func (e *CategoryEncoder) Classes() []string {
	return slices.Clone(e.classes)
}

type categoryEncoderJSON struct {
	Classes []string `json:"classes"`
}

func (e *CategoryEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(categoryEncoderJSON{Classes: e.classes})
}

func (e *CategoryEncoder) UnmarshalJSON(data []byte) error {
	var raw categoryEncoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !slices.IsSorted(raw.Classes) {
		return fmt.Errorf("category encoder classes are not sorted")
	}
	*e = *newCategoryEncoder(raw.Classes)
	return nil
}
