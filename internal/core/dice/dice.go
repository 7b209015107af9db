// Package dice provides deterministic die rolling over a recorded source.
//
// Rolls are deterministic with respect to the seed of the provided
// random.Source: the same seed and the same sequence of Roll calls always
// produce the same results. Raw die values are kept on the Result so a
// committed outcome can show exactly what was rolled.
package dice

import (
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/random"
)

// ErrInvalidSpec indicates a dice spec with non-positive sides or count.
var ErrInvalidSpec = apperrors.New(apperrors.CodeDiceInvalidSpec, "dice spec must have positive sides and count")

// Spec describes a set of identical dice to roll.
type Spec struct {
	Sides int
	Count int
}

// Result holds the raw values of one rolled spec and their sum.
type Result struct {
	Sides  int
	Values []int
	Total  int
}

// Roll rolls a spec against the provided source.
//
// Values appear in Result.Values in draw order. Total is their sum.
func Roll(src *random.Source, spec Spec) (Result, error) {
	if spec.Sides <= 0 || spec.Count <= 0 {
		return Result{}, ErrInvalidSpec
	}

	values := make([]int, spec.Count)
	total := 0
	for i := 0; i < spec.Count; i++ {
		values[i] = src.IntN(spec.Sides)
		total += values[i]
	}

	return Result{
		Sides:  spec.Sides,
		Values: values,
		Total:  total,
	}, nil
}

// D20 rolls a single twenty-sided die.
func D20(src *random.Source) int {
	return src.IntN(20)
}

// D6 rolls a single six-sided die.
func D6(src *random.Source) int {
	return src.IntN(6)
}

// D4 rolls a single four-sided die.
func D4(src *random.Source) int {
	return src.IntN(4)
}
