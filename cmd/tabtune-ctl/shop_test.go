package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidAmount(t *testing.T) {
	for _, ok := range []string{"0", "12", "12.", "12.5", "12.50"} {
		assert.True(t, validAmount.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "-1", "1.234", "1e3", ".5", "abc", "1,5"} {
		assert.False(t, validAmount.MatchString(bad), bad)
	}
}

func TestRunDiscount(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runDiscount([]string{"80", "60"}, &out))
	assert.Equal(t, "Discount: 25.00%\n", out.String())

	assert.Error(t, runDiscount([]string{"0", "10"}, &out))
	assert.Error(t, runDiscount([]string{"10.999", "5"}, &out))
	assert.Error(t, runDiscount([]string{"10"}, &out))
}

func TestRunUnitPrice(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runUnitPrice([]string{"3.50", "250"}, &out))
	assert.Equal(t, "$1.40 per 100g/ml\n", out.String())

	assert.Error(t, runUnitPrice([]string{"3", "0"}, &out))
}
