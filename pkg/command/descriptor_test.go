package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/zephyrgrid/pkg/extension"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
)

func ref(name string) extension.Reference { return extension.Reference{Name: name} }

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		ok   bool
	}{
		{"listener set", Descriptor{Region: "regionA", Changes: map[extension.Kind]Value{
			extension.KindListener: Set(ref("A"), ref("B"), ref("C")),
		}}, true},
		{"clear everything", Descriptor{Region: "regionA", Changes: map[extension.Kind]Value{
			extension.KindListener: Clear(), extension.KindLoader: Clear(), extension.KindWriter: Clear(),
		}}, true},
		{"two loaders", Descriptor{Region: "regionA", Changes: map[extension.Kind]Value{
			extension.KindLoader: Set(ref("A"), ref("B")),
		}}, false},
		{"two writers", Descriptor{Region: "regionA", Changes: map[extension.Kind]Value{
			extension.KindWriter: Set(ref("A"), ref("B")),
		}}, false},
		{"no region", Descriptor{Changes: map[extension.Kind]Value{extension.KindListener: Clear()}}, false},
		{"nothing to change", Descriptor{Region: "regionA"}, false},
		{"unnamed reference", Descriptor{Region: "regionA", Changes: map[extension.Kind]Value{
			extension.KindListener: Set(ref("")),
		}}, false},
		{"empty explicit selector", Descriptor{Region: "regionA", Selector: membership.Explicit(),
			Changes: map[extension.Kind]Value{extension.KindListener: Clear()}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrMalformedDescriptor)
			}
		})
	}
}

func TestFlatForm(t *testing.T) {
	d := Descriptor{
		Region:   "regionA",
		Selector: membership.Group("group1"),
		Changes: map[extension.Kind]Value{
			extension.KindListener: Set(ref("A"), extension.Reference{Name: "B", Args: map[string]string{"n": "1"}}),
			extension.KindWriter:   Clear(),
		},
	}
	flat := d.Flatten()
	assert.Equal(t, map[string]string{
		"region":         "regionA",
		"selector":       "group:group1",
		"cache-listener": `A,B{"n":"1"}`,
		"cache-writer":   "",
	}, flat)

	back, err := ParseFlat(flat)
	require.NoError(t, err)
	assert.Equal(t, d.Region, back.Region)
	assert.Equal(t, d.Selector, back.Selector)
	assert.Equal(t, []extension.Kind{extension.KindListener, extension.KindWriter}, back.Kinds())
	assert.Equal(t, d.Changes[extension.KindListener], back.Changes[extension.KindListener])
	assert.True(t, back.Changes[extension.KindWriter].IsClear())
}

func TestParseFlatRejects(t *testing.T) {
	for name, m := range map[string]map[string]string{
		"unknown field":  {"region": "r", "cache-reader": "A"},
		"bad selector":   {"region": "r", "selector": "nodes:a", "cache-listener": "A"},
		"bad reference":  {"region": "r", "cache-listener": "A{"},
		"two loaders":    {"region": "r", "cache-loader": "A,B"},
		"missing region": {"cache-listener": "A"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFlat(m)
			require.ErrorIs(t, err, ErrMalformedDescriptor)
		})
	}
}
