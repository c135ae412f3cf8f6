package statistic

import "math"

// Accumulator computes AVERAGE/MAX/MIN/SUM over a value stream in one pass.
// The zero value is empty and ready to use.
type Accumulator struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

// Add folds one value into the accumulator.
func (a *Accumulator) Add(value float64) {
	if a.count == 0 {
		a.min = value
		a.max = value
	} else {
		if value < a.min {
			a.min = value
		}
		if value > a.max {
			a.max = value
		}
	}
	a.sum += value
	a.count++
}

// Count returns the number of folded values.
func (a *Accumulator) Count() int64 { return a.count }

// Value returns the computed result for one operation. The second return is
// false when the accumulator is empty; an empty group must emit no value,
// not zero.
func (a *Accumulator) Value(op Operation) (float64, bool) {
	if a.count == 0 {
		return 0, false
	}
	switch op {
	case OperationAverage:
		return Round2(a.sum / float64(a.count)), true
	case OperationMax:
		return a.max, true
	case OperationMin:
		return a.min, true
	case OperationSum:
		return a.sum, true
	}
	return 0, false
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
