package service

import (
	"math"

	"github.com/bibbank/fraudscoring/internal/domain/model"
)

// Predict applies threshold to clf's probabilities for every row of x.
func Predict(clf model.Classifier, x [][]float64, threshold float64) []int {
	out := make([]int, len(x))
	for i, row := range x {
		if clf.PredictProba(row) >= threshold {
			out[i] = 1
		}
	}
	return out
}

// Accuracy is the fraction of predictions equal to the labels.
func Accuracy(y, pred []int) float64 {
	if len(y) == 0 {
		return 0
	}
	correct := 0
	for i := range y {
		if y[i] == pred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

// F1 is the positive-class F1 score. It is 0 when there are no true
// positives.
func F1(y, pred []int) float64 {
	var tp, fp, fn int
	for i := range y {
		switch {
		case pred[i] == 1 && y[i] == 1:
			tp++
		case pred[i] == 1:
			fp++
		case y[i] == 1:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(2*tp+fp+fn)
}

// Round4 rounds x to 4 decimal places.
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
