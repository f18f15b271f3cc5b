package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCountry(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FRA", "FRA"},
		{"deu", "DEU"},
		{" ita ", "ITA"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeCountry(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeCountry_Invalid(t *testing.T) {
	for _, in := range []string{"ZZZ", "FR", "123", "", "FRANCE"} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeCountry(in)
			require.ErrorIs(t, err, ErrInvalidCountry)
		})
	}
}

func TestNormalizeCountry_Withdrawn(t *testing.T) {
	for _, in := range []string{"ANT", "SCG", "YUG", "ZAR", "TMP", "BUR", "DDR", "SUN", "NTZ", "CSK", "ant"} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizeCountry(in)
			require.ErrorIs(t, err, ErrInvalidCountry)
		})
	}
}

func TestValidateAdmLevel(t *testing.T) {
	for level := MinAdmLevel; level <= MaxAdmLevel; level++ {
		require.NoError(t, ValidateAdmLevel(level))
	}
	require.ErrorIs(t, ValidateAdmLevel(-1), ErrInvalidAdmLevel)
	require.ErrorIs(t, ValidateAdmLevel(3), ErrInvalidAdmLevel)
}
