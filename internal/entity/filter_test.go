package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Matches(t *testing.T) {
	f, err := NewFilter([]string{"ubuntu.*iso", "c12fe1c06bba254a9dc9f519b335aa7c1367a88a"})
	require.NoError(t, err)

	assert.True(t, f.Matches("Ubuntu-24.04.iso", ""), "patterns are case-insensitive")
	assert.True(t, f.Matches("other name", "C12FE1C06BBA254A9DC9F519B335AA7C1367A88A"), "hash criteria ignore case")
	assert.False(t, f.Matches("debian.iso", ""))
	assert.False(t, f.Matches("debian.iso", "ffffffffffffffffffffffffffffffffffffffff"))
}

func TestNewFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter([]string{"["})
	assert.Error(t, err)
}

func TestFilter_Empty(t *testing.T) {
	f, err := NewFilter(nil)
	require.NoError(t, err)

	assert.True(t, f.Empty())
	assert.False(t, f.Matches("anything", ""))
}
