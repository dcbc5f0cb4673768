package catalog

import (
	"errors"
	"testing"

	"github.com/JonMunkholm/bso/internal/release"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitResolver_Resolve(t *testing.T) {
	r := NewUnitResolver(DefaultUnits)

	tests := []struct {
		label string
		want  UnitCode
	}{
		{"Gallon", "11"},
		{"gallon", "11"},
		{"  MT ", "12"},
		{"Pound", "10"},
		{"Pounds Solids", "13"},
	}

	for _, tt := range tests {
		got, err := r.Resolve(tt.label)
		require.NoError(t, err, tt.label)
		assert.Equal(t, tt.want, got, tt.label)
	}
}

func TestUnitResolver_Unknown(t *testing.T) {
	r := NewUnitResolver(DefaultUnits)

	_, err := r.Resolve("Barrel")
	require.Error(t, err)
	assert.True(t, errors.Is(err, release.ErrUnknownUnit))

	var unknown *release.UnknownUnitError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Barrel", unknown.Label)

	_, err = r.Resolve("")
	assert.Error(t, err)
}

func TestNewUnitResolver_SkipsBlankEntries(t *testing.T) {
	r := NewUnitResolver(map[string]string{"Each": "1", "": "2", "Box": " "})
	assert.Equal(t, []string{"each"}, r.Labels())
}
