package event

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeAccepts(t *testing.T) {
	typ := NewType[opened]("opened")

	assert.True(t, typ.Accepts(opened{}))
	assert.False(t, typ.Accepts(&opened{}))
	assert.False(t, typ.Accepts(nil))
	assert.Equal(t, reflect.TypeOf(opened{}), typ.PayloadType())
	assert.Equal(t, "opened", typ.Name())
	assert.Contains(t, typ.String(), "opened(")
}

func TestExportAndLookup(t *testing.T) {
	typ := Export(NewType[opened]("test.export.opened"))

	k, ok := Lookup("test.export.opened")
	require.True(t, ok)
	assert.Equal(t, Key(typ), k)
	assert.Contains(t, Exported(), "test.export.opened")

	// Exporting the same token again is allowed.
	assert.NotPanics(t, func() { Export(typ) })
	assert.Panics(t, func() { Export(NewType[opened]("test.export.opened")) })

	_, ok = Lookup("test.export.missing")
	assert.False(t, ok)
}
