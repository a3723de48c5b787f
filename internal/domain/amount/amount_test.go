package amount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromString_RejectsExtraPrecision(t *testing.T) {
	_, err := FromString("1.123456789")
	require.Error(t, err)
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name string
		a, b Amount
		op   func(a, b Amount) Amount
		want Amount
	}{
		{"add", MustFromString("1.00000001"), MustFromString("2.00000002"), Amount.Add, MustFromString("3.00000003")},
		{"sub", MustFromString("5.00000000"), MustFromString("2.00000001"), Amount.Sub, MustFromString("2.99999999")},
		{"mul", MustFromString("2.00000000"), MustFromString("3.00000000"), Amount.Mul, MustFromString("6.00000000")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.want.Equal(tc.op(tc.a, tc.b)))
		})
	}
}

func TestOverflowPanics(t *testing.T) {
	huge := MustFromString("1701411834604692317316873037158.84105727")
	assert.Panics(t, func() {
		huge.Add(huge)
	})
}

func TestMinMax(t *testing.T) {
	a := MustFromString("1.0")
	b := MustFromString("2.0")
	assert.True(t, Min(a, b).Equal(a))
	assert.True(t, Max(a, b).Equal(b))
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustFromString("100.50000000")
	b, err := a.MarshalJSON()
	require.NoError(t, err)

	var out Amount
	require.NoError(t, out.UnmarshalJSON(b))
	assert.True(t, a.Equal(out))
}
