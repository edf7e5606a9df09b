package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Amount
		wantErr bool
	}{
		{in: "1", want: 100_000_000},
		{in: "0.5", want: 50_000_000},
		{in: " 0.001 ", want: 100_000},
		{in: "0.00000001", want: 1},
		{in: "10.12345678", want: 1_012_345_678},
		{in: "0", want: 0},
		{in: "0.000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "Infinity", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAmountString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2", Amount(200_000_000).String())
	assert.Equal(t, "1.42857143", Amount(142_857_143).String())
	assert.Equal(t, "0.001", Amount(100_000).String())
	assert.Equal(t, "0", Amount(0).String())
}

func TestAmountJSON(t *testing.T) {
	t.Parallel()

	var v struct {
		A Amount `json:"a"`
		B Amount `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"0.25","b":1.5}`), &v))
	assert.Equal(t, Amount(25_000_000), v.A)
	assert.Equal(t, Amount(150_000_000), v.B)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"0.25","b":"1.5"}`, string(out))

	require.ErrorIs(t, json.Unmarshal([]byte(`{"a":"-3"}`), &v), ErrValidation)
}
