package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"temperature=34", "on=true", "level=med", "min_soc=-5"})
	require.NoError(t, err)

	assert.Equal(t, 34, params["temperature"])
	assert.Equal(t, true, params["on"])
	assert.Equal(t, "med", params["level"])
	assert.Equal(t, -5, params["min_soc"])
}

func TestParseParamsRejectsBareWords(t *testing.T) {
	_, err := parseParams([]string{"temperature"})
	assert.Error(t, err)

	_, err = parseParams([]string{"=34"})
	assert.Error(t, err)
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
