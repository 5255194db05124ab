package midiin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectPort(t *testing.T) {
	names := []string{
		"Midi Through:Midi Through Port-0 14:0",
		"Launchkey Mini:Launchkey Mini MIDI 1 20:0",
		"USB Keystation 61:USB Keystation 61 MIDI 1 24:0",
	}
	tt := []struct {
		name     string
		want     string
		expected int
		found    bool
	}{
		{"index", "2", 2, true},
		{"index zero", "0", 0, true},
		{"index out of range", "3", 0, false},
		{"negative index", "-1", 0, false},
		{"exact name", "Midi Through:Midi Through Port-0 14:0", 0, true},
		{"fragment", "launchkey", 1, true},
		{"fragment skips excluded", "midi", 1, true},
		{"through only by exact name", "through", 0, false},
		{"missing", "Novation", 0, false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			idx, err := selectPort(names, tc.want)
			if !tc.found {
				assert.ErrorIs(t, err, ErrNotFound)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, idx)
		})
	}
}
