package version

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []int
	}{
		{name: "empty", input: "", want: []int{}},
		{name: "plain", input: "30.1.2", want: []int{30, 1, 2}},
		{name: "non numeric component", input: "1.x.0", want: []int{1, 0, 0}},
		{name: "pre-release suffix", input: "2.0-beta", want: []int{2, 0}},
		{name: "leading digits only", input: "3rc1.4", want: []int{3, 4}},
		{name: "trailing dot", input: "1.", want: []int{1, 0}},
		{name: "overflow saturates", input: "99999999999999999999999", want: []int{math.MaxInt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.input))
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.9.0", "1.10.0", -1},
		{"1.10.0", "1.9.0", 1},
		{"1.2", "1.2.0", 0},
		{"1.2.0", "1.2", 0},
		{"", "0.0", 0},
		{"", "0.0.1", -1},
		{"31.0.0", "30.2.3", 1},
		{"1.x.0", "1.0.0", 0},
		{"2.0-beta", "2.0.0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCompareReflexive(t *testing.T) {
	for _, v := range []string{"", "0", "1.0", "1.2.3", "10.20.30.40", "1.x", "v2"} {
		assert.Equal(t, 0, Compare(v, v), "Compare(%q, %q)", v, v)
	}
}

func TestCheckMinimum(t *testing.T) {
	require.NoError(t, CheckMinimum("30.0.0", ""))
	require.NoError(t, CheckMinimum("30.0.0", "30.0"))
	require.NoError(t, CheckMinimum("30.1.0", "30.0.9"))

	err := CheckMinimum("29.1.3", "30.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIncompatible))

	var incompatible *IncompatibleError
	require.True(t, errors.As(err, &incompatible))
	assert.Equal(t, "30.0.0", incompatible.Required)
	assert.Equal(t, "29.1.3", incompatible.Current)
	assert.Contains(t, err.Error(), "30.0.0")
}
