package prescription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDosesPerDay(t *testing.T) {
	cases := map[string]int{
		"OD":    1,
		"bd":    2,
		" TDS ": 3,
		"tid":   3,
		"QID":   4,
		"HS":    1,
		"SOS":   1,
		"1-0-1": 2,
		"1-1-1": 3,
		"2-0-2": 4,
		"0-0-1": 1,
	}
	for in, want := range cases {
		got, err := DosesPerDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestDosesPerDay_Rejects(t *testing.T) {
	for _, in := range []string{"", "weekly", "0-0-0", "1-x-1", "1--1", "-1-0-1"} {
		_, err := DosesPerDay(in)
		assert.Error(t, err, in)
	}
}

func TestDeriveQuantity(t *testing.T) {
	q, err := DeriveQuantity("BD", 5)
	require.NoError(t, err)
	assert.Equal(t, 10, q)

	q, err = DeriveQuantity("1-0-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, q, "zero duration counts as a single day")

	_, err = DeriveQuantity("OD", -2)
	assert.Error(t, err)
}
