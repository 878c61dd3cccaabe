package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
)

func testSpaces() []kaiten.Space {
	return []kaiten.Space{
		{ID: 1, UID: "a", Title: "Компания"},
		{ID: 2, UID: "b", Title: "Разработка", ParentUID: "a"},
		{ID: 3, UID: "c", Title: "Бэкенд", ParentUID: "b"},
		{ID: 4, UID: "d", Title: "Архив"},
		{ID: 5, UID: "e", Title: "Старое", ParentUID: "d"},
		{ID: 6, UID: "f", Title: "Песочница"},
	}
}

func TestSpacePath(t *testing.T) {
	idx := BuildSpaceIndex(testSpaces())

	assert.Equal(t, "Компания", idx.Path(idx["a"]))
	assert.Equal(t, "Компания/Разработка", idx.Path(idx["b"]))
	assert.Equal(t, "Компания/Разработка/Бэкенд", idx.Path(idx["c"]))
}

func TestSpacePathCycleBounded(t *testing.T) {
	idx := BuildSpaceIndex([]kaiten.Space{
		{ID: 1, UID: "x", Title: "X", ParentUID: "y"},
		{ID: 2, UID: "y", Title: "Y", ParentUID: "x"},
	})

	// Must terminate; the exact shape does not matter beyond containing
	// the space's own title last.
	path := idx.Path(idx["x"])
	assert.Contains(t, path, "X")
}

func TestSpaceLevel(t *testing.T) {
	idx := BuildSpaceIndex(testSpaces())

	assert.Equal(t, 1, idx.Level(idx["a"]))
	assert.Equal(t, 2, idx.Level(idx["b"]))
	assert.Equal(t, 3, idx.Level(idx["c"]))
}

func TestShouldMigrateSpace(t *testing.T) {
	spaces := testSpaces()
	idx := BuildSpaceIndex(spaces)

	tests := []struct {
		name     string
		uid      string
		excluded []string
		want     bool
	}{
		{"root with children", "a", nil, false},
		{"second level", "b", nil, true},
		{"third level", "c", nil, false},
		{"leaf root", "f", nil, true},
		{"second level in excluded tree", "e", []string{"Архив"}, false},
		{"excluded root itself", "d", []string{"Архив"}, false},
		{"second level under excluded ancestor", "b", []string{"Компания"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.ShouldMigrateSpace(idx[tt.uid], tt.excluded))
		})
	}
}
