package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetDebug(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestDebugEnabled(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		expected bool
		wantErr  bool
	}{
		{name: "unset", expected: false},
		{name: "set but empty", set: true, expected: true},
		{name: "true", value: "true", set: true, expected: true},
		{name: "one", value: "1", set: true, expected: true},
		{name: "false", value: "false", set: true, expected: false},
		{name: "zero", value: "0", set: true, expected: false},
		{name: "garbage", value: "maybe", set: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DebugEnabled(tt.value, tt.set)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
