// Package version implements the dotted numeric version ordering used to gate
// package compatibility against the running host.
//
// Versions are compared component-wise as integers, never as strings:
// "1.9.0" sorts before "1.10.0". Each dot-separated component contributes only
// its leading decimal digits, so "1.x.0" reads as [1 0 0] and "2.0-beta" as
// [2 0]. Shorter sequences are padded with zeros, which makes "1.2" and
// "1.2.0" equal.
package version

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrIncompatible is returned (wrapped) when a host version is below the
// minimum a package declares.
var ErrIncompatible = errors.New("incompatible host version")

// IncompatibleError describes a failed minimum-version check.
type IncompatibleError struct {
	// Current is the running host version
	Current string

	// Required is the minimum version the package declares
	Required string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("package requires host version %s or newer (running %s)", e.Required, e.Current)
}

func (e *IncompatibleError) Unwrap() error {
	return ErrIncompatible
}

// Parse splits a version string into its numeric components.
// An empty string yields an empty slice. Digit runs too large for an int
// saturate at math.MaxInt.
func Parse(v string) []int {
	if v == "" {
		return []int{}
	}

	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, part := range parts {
		out = append(out, leadingNumber(part))
	}
	return out
}

func leadingNumber(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		d := int(c - '0')
		if n > (math.MaxInt-d)/10 {
			return math.MaxInt
		}
		n = n*10 + d
	}
	return n
}

// Compare returns -1 if a < b, 0 if a == b and 1 if a > b.
func Compare(a, b string) int {
	left := Parse(a)
	right := Parse(b)

	size := max(len(left), len(right))
	for i := 0; i < size; i++ {
		var l, r int
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		switch {
		case l < r:
			return -1
		case l > r:
			return 1
		}
	}
	return 0
}

// CheckMinimum reports whether current satisfies the declared minimum.
// An empty minimum means the package has no constraint.
func CheckMinimum(current, minimum string) error {
	if minimum == "" {
		return nil
	}
	if Compare(current, minimum) >= 0 {
		return nil
	}
	return &IncompatibleError{Current: current, Required: minimum}
}
