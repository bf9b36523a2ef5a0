package model

// Dataset is an engineered numeric training set: row i of X has label Y[i]
// and columns ordered by Features.
type Dataset struct {
	Features FeatureSchema
	X        [][]float64
	Y        []int
}

func (d Dataset) Len() int { return len(d.Y) }

// ClassCounts returns the number of negative and positive labels.
func (d Dataset) ClassCounts() (negatives, positives int) {
	for _, y := range d.Y {
		if y == 1 {
			positives++
		} else {
			negatives++
		}
	}
	return negatives, positives
}

// PositiveFraction is positives / rows, or 0 for an empty set.
func (d Dataset) PositiveFraction() float64 {
	if len(d.Y) == 0 {
		return 0
	}
	_, pos := d.ClassCounts()
	return float64(pos) / float64(len(d.Y))
}

// Subset returns the rows at idx. Row slices are shared, not copied.
func (d Dataset) Subset(idx []int) Dataset {
	out := Dataset{
		Features: d.Features,
		X:        make([][]float64, len(idx)),
		Y:        make([]int, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}
