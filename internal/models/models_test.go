package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleParameterNumber(t *testing.T) {
	tests := []struct {
		value  string
		want   float64
		wantOk bool
	}{
		{"850", 850, true},
		{" 92 ", 92, true},
		{"12.5", 12.5, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, ok := VehicleParameter{Value: tt.value}.Number()
			assert.Equal(t, tt.wantOk, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindParameter(t *testing.T) {
	params := []VehicleParameter{{Label: LabelRPM, Value: "850"}, {Label: LabelEngineTemp, Value: "92"}}

	p, ok := FindParameter(params, LabelEngineTemp)
	require.True(t, ok)
	assert.Equal(t, "92", p.Value)

	_, ok = FindParameter(params, LabelFuelLevel)
	assert.False(t, ok)
}

func TestConnectionStateJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		State ConnectionState `json:"state"`
	}{Connecting})
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"connecting"}`, string(data))
	assert.Equal(t, "unknown", ConnectionState(42).String())
}
