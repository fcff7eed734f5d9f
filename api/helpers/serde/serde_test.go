package serde

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reading struct {
	Address string `json:"address"`
	Value   int    `json:"value"`
}

func TestMarshalJson(t *testing.T) {
	first, err := MarshalJson(reading{Address: "AA:BB", Value: 1})
	require.NoError(t, err)

	second, err := MarshalJson(reading{Address: "CC:DD", Value: 2})
	require.NoError(t, err)

	assert.JSONEq(t, `{"address":"AA:BB","value":1}`, string(first))
	assert.JSONEq(t, `{"address":"CC:DD","value":2}`, string(second))
}

func TestUnmarshalJson(t *testing.T) {
	var r reading
	require.NoError(t, UnmarshalJson([]byte(`{"address":"AA:BB","value":7}`), &r))
	assert.Equal(t, reading{Address: "AA:BB", Value: 7}, r)

	require.Error(t, UnmarshalJson([]byte(`{"unknown":1}`), &r))
}
