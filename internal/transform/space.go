package transform

import (
	"strings"

	"github.com/vlikhobabin/kaiten-to-bitrix/internal/kaiten"
)

// maxSpaceDepth bounds parent-chain walks so a malformed hierarchy with a
// cycle cannot loop forever.
const maxSpaceDepth = 10

// SpaceIndex is the space hierarchy keyed by space UID, built once per run.
type SpaceIndex map[string]kaiten.Space

// BuildSpaceIndex indexes the given spaces by UID.
func BuildSpaceIndex(spaces []kaiten.Space) SpaceIndex {
	idx := make(SpaceIndex, len(spaces))
	for _, s := range spaces {
		idx[s.UID] = s
	}
	return idx
}

// Path builds the hierarchical display name of a space by joining ancestor
// titles root-first with "/".
func (idx SpaceIndex) Path(space kaiten.Space) string {
	parts := []string{space.Title}
	current := space
	for depth := 0; current.ParentUID != "" && depth < maxSpaceDepth; depth++ {
		parent, ok := idx[current.ParentUID]
		if !ok {
			break
		}
		parts = append([]string{parent.Title}, parts...)
		current = parent
	}
	return strings.Join(parts, "/")
}

// Level returns the depth of a space in the hierarchy: 1 for a root space,
// 2 for its direct children, and so on.
func (idx SpaceIndex) Level(space kaiten.Space) int {
	level := 1
	current := space
	for current.ParentUID != "" && level < maxSpaceDepth {
		parent, ok := idx[current.ParentUID]
		if !ok {
			break
		}
		level++
		current = parent
	}
	return level
}

// HasChildren reports whether any indexed space names this one as parent.
func (idx SpaceIndex) HasChildren(space kaiten.Space) bool {
	for _, s := range idx {
		if s.ParentUID == space.UID {
			return true
		}
	}
	return false
}

// InExcludedTree reports whether the space or any of its ancestors carries
// an excluded title.
func (idx SpaceIndex) InExcludedTree(space kaiten.Space, excluded []string) bool {
	current := space
	for depth := 0; depth < maxSpaceDepth; depth++ {
		for _, name := range excluded {
			if current.Title == name {
				return true
			}
		}
		if current.ParentUID == "" {
			break
		}
		parent, ok := idx[current.ParentUID]
		if !ok {
			break
		}
		current = parent
	}
	return false
}

// ShouldMigrateSpace applies the container selection rules: leaf root
// spaces and all second-level spaces migrate; root spaces with children
// and anything deeper than the second level do not, nor does anything in
// an excluded subtree.
func (idx SpaceIndex) ShouldMigrateSpace(space kaiten.Space, excluded []string) bool {
	if idx.InExcludedTree(space, excluded) {
		return false
	}
	level := idx.Level(space)
	switch {
	case level == 2:
		return true
	case level == 1:
		return !idx.HasChildren(space)
	default:
		return false
	}
}
