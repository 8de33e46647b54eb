package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_StringFormat(t *testing.T) {
	tests := []struct {
		name string
		q    Quantity
		want string
	}{
		{"zero", 0, "0.0000"},
		{"integer", NewQuantityFromFloat64(5), "5.0000"},
		{"fractional", NewQuantityFromFloat64(2.5), "2.5000"},
		{"smallest step", 1, "0.0001"},
		{"negative", NewQuantityFromFloat64(-3.25), "-3.2500"},
		{"negative fraction only", -1, "-0.0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.String())
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    Quantity
		wantErr bool
	}{
		{in: "5", want: NewQuantityFromFloat64(5)},
		{in: "2.5", want: NewQuantityFromFloat64(2.5)},
		{in: "0.0001", want: 1},
		{in: "-3.25", want: NewQuantityFromFloat64(-3.25)},
		{in: "+7", want: NewQuantityFromFloat64(7)},
		{in: "  10.5 ", want: NewQuantityFromFloat64(10.5)},
		{in: "1e2", want: NewQuantityFromFloat64(100)},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantity_JSONRoundTrip(t *testing.T) {
	for _, q := range []Quantity{0, 1, NewQuantityFromFloat64(2.5), NewQuantityFromFloat64(-10.0001)} {
		data, err := json.Marshal(q)
		require.NoError(t, err)

		var back Quantity
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, q, back, "round-tripping %s", q)
	}
}

func TestQuantity_UnmarshalAcceptsStringsAndNull(t *testing.T) {
	var q Quantity
	require.NoError(t, json.Unmarshal([]byte(`"12.5"`), &q))
	assert.Equal(t, NewQuantityFromFloat64(12.5), q)

	require.NoError(t, json.Unmarshal([]byte(`null`), &q))
	assert.Equal(t, Quantity(0), q)

	require.Error(t, json.Unmarshal([]byte(`"not a number"`), &q))
}

func TestQuantity_Truncation(t *testing.T) {
	// Parsing keeps exactly four fractional digits; extra digits drop.
	got, err := ParseQuantity("1.23456")
	require.NoError(t, err)
	assert.Equal(t, Quantity(12345), got)
}

func TestMoney_Parse(t *testing.T) {
	m, err := NewMoneyFromString("19.99")
	require.NoError(t, err)
	assert.True(t, m.Equal(MustMoney("19.99")))

	_, err = NewMoneyFromString("nope")
	require.Error(t, err)
}
