package extension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(listeners))
	require.NoError(t, err)
	require.Len(t, m.Units, 4)

	u, ok := m.Unit("com.example.Log")
	require.True(t, ok)
	assert.Equal(t, "log", u.Factory)
	assert.Equal(t, map[string]string{"tag": "default"}, u.Args)

	out, err := m.Marshal()
	require.NoError(t, err)
	again, err := ParseManifest(out)
	require.NoError(t, err)
	assert.Equal(t, m, again)
}

func TestParseManifestRejects(t *testing.T) {
	tests := map[string]string{
		"no units":      "units: []\n",
		"unknown field": "units:\n  - {name: A, kind: listener, factory: noop, extra: 1}\n",
		"bad kind":      "units:\n  - {name: A, kind: reader, factory: noop}\n",
		"no factory":    "units:\n  - {name: A, kind: listener}\n",
		"no name":       "units:\n  - {kind: listener, factory: noop}\n",
		"duplicate": "units:\n  - {name: A, kind: listener, factory: noop}\n" +
			"  - {name: A, kind: writer, factory: log}\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(content))
			assert.Error(t, err)
		})
	}
}
