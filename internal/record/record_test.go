package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSetGetPreservesOrder(t *testing.T) {
	r := NewRecord("account", "A1")
	r.Set("name", NewString("Acme"))
	r.Set("revenue", NewMoney(1000))
	r.Set("name", NewString("Acme Corp")) // overwrite, order unchanged

	assert.Equal(t, []string{"name", "revenue"}, r.Names())

	v, ok := r.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Acme Corp", v.Str)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRecordDeleteReindexes(t *testing.T) {
	r := NewRecord("account", "A1")
	r.Set("a", NewString("1"))
	r.Set("b", NewString("2"))
	r.Set("c", NewString("3"))

	r.Delete("b")

	assert.Equal(t, []string{"a", "c"}, r.Names())
	v, ok := r.Get("c")
	require.True(t, ok)
	assert.Equal(t, "3", v.Str)
}

func TestRecordClone(t *testing.T) {
	r := NewRecord("account", "A1")
	r.Set("name", NewString("Acme"))

	clone := r.Clone()
	clone.Set("name", NewString("Changed"))

	orig, _ := r.Get("name")
	cloned, _ := clone.Get("name")
	assert.Equal(t, "Acme", orig.Str)
	assert.Equal(t, "Changed", cloned.Str)
}

func TestValueIsReference(t *testing.T) {
	assert.True(t, NewReference("account", "A1").IsReference())
	assert.False(t, NewString("x").IsReference())
}

func TestShouldIncludeField(t *testing.T) {
	meta := EntityValidity{
		"createonly": {ValidForCreate: true, ValidForUpdate: false},
		"updateonly": {ValidForCreate: false, ValidForUpdate: true},
		"readonly":   {ValidForCreate: false, ValidForUpdate: false},
	}

	tests := []struct {
		field string
		mode  Mode
		want  bool
	}{
		{"createonly", ModeCreate, true},
		{"createonly", ModeUpdate, false},
		{"createonly", ModeUpsert, true},
		{"updateonly", ModeCreate, false},
		{"updateonly", ModeUpdate, true},
		{"readonly", ModeUpsert, false},
		{"unknownfield", ModeCreate, true}, // absent from metadata: include
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ShouldIncludeField(tt.field, tt.mode, meta), "%s/%s", tt.field, tt.mode)
	}

	assert.True(t, ShouldIncludeField("anything", ModeCreate, nil))
}

func TestIDMap(t *testing.T) {
	m := NewIDMap()
	m.Set("account", "old1", "new1")

	got, ok := m.Get("account", "old1")
	require.True(t, ok)
	assert.Equal(t, "new1", got)

	_, ok = m.Get("account", "old2")
	assert.False(t, ok)

	_, ok = m.Get("contact", "old1")
	assert.False(t, ok, "keys are scoped per entity")

	assert.Equal(t, 1, m.Len())
}

func TestChunk(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Chunk(items, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(items, 10))
	assert.Nil(t, Chunk([]int{}, 2))
	assert.Equal(t, [][]int{{1, 2, 3, 4, 5}}, Chunk(items, 0))
}
