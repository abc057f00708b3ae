package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeMSISDN(t *testing.T) {
	var tests = []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "local format", input: "0712345678", expected: "254712345678"},
		{name: "local format newer allocation", input: "0110345678", expected: "254110345678"},
		{name: "international with plus", input: "+254712345678", expected: "254712345678"},
		{name: "bare country code", input: "254712345678", expected: "254712345678"},
		{name: "spaces and dashes ignored", input: "+254 712-345-678", expected: "254712345678"},
		{name: "leading and trailing whitespace", input: "  0712345678  ", expected: "254712345678"},
		{name: "empty", input: "", wantErr: true},
		{name: "letters", input: "07123456ab", wantErr: true},
		{name: "too short local", input: "071234567", wantErr: true},
		{name: "too long local", input: "07123456789", wantErr: true},
		{name: "wrong country code", input: "255712345678", wantErr: true},
		{name: "subscriber not mobile", input: "0202345678", wantErr: true},
		{name: "bare subscriber number", input: "712345678", wantErr: true},
		{name: "plus mid string", input: "2547+12345678", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeMSISDN(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPhoneFormat)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestNormalizeMSISDNIdempotent(t *testing.T) {
	inputs := []string{"0712345678", "+254712345678", "254112345678"}

	for _, input := range inputs {
		first, err := NormalizeMSISDN(input)
		require.NoError(t, err)

		second, err := NormalizeMSISDN(first)
		require.NoError(t, err)
		require.Equal(t, first, second)
	}
}
