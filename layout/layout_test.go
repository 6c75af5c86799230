package layout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tessera/diag"
	"github.com/chazu/tessera/model"
)

// program declares class Node and value type Pair{head: reference Node,
// next: optional Node, count: plain integer} with offsets 0, 1 and 3.
func program(t *testing.T) *model.Program {
	t.Helper()
	pair := &model.ValueType{
		Name: "Pair",
		Fields: []model.Field{
			{Name: "head", Type: model.Ref("Node"), Offset: 0},
			{Name: "next", Type: model.Optional("Node"), Offset: 1},
			{Name: "count", Type: model.Plain("integer"), Offset: 3},
		},
		Size: 4,
	}
	p := &model.Program{Packages: []*model.Package{{
		Name:       "test",
		Classes:    []*model.Class{{Name: "Node"}},
		ValueTypes: []*model.ValueType{pair},
	}}}
	var diags diag.List
	p.Resolve(&diags)
	require.Zero(t, diags.Len())
	return p
}

func TestDescribeKinds(t *testing.T) {
	p := program(t)

	tests := []struct {
		name string
		t    model.TypeRef
		want []Record
	}{
		{"plain", model.Plain("integer"), nil},
		{"reference", model.Ref("Node"), []Record{{Index: 5, Kind: Simple}}},
		{"optional", model.Optional("Node"), []Record{{Index: 6, Condition: 5, Kind: Conditional}}},
		{"boxed", model.Boxed(), []Record{{Index: 5, Kind: Box}}},
		{"value", model.Value("Pair"), []Record{
			{Index: 5, Kind: Simple},
			{Index: 7, Condition: 6, Kind: Conditional},
		}},
		{"optional value", model.OptionalValue("Pair"), []Record{
			{Index: 2, Condition: 5, Kind: ConditionalSkip},
			{Index: 6, Kind: Simple},
			{Index: 8, Condition: 7, Kind: Conditional},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(p, tt.t, 5, nil))
		})
	}
}

func TestDescribeStopsAtNestedSelf(t *testing.T) {
	loop := &model.ValueType{
		Name: "Loop",
		Fields: []model.Field{
			{Name: "head", Type: model.Ref("Node"), Offset: 0},
			{Name: "next", Type: model.Value("Loop"), Offset: 1},
			{Name: "maybe", Type: model.OptionalValue("Loop"), Offset: 2},
		},
	}
	p := &model.Program{Packages: []*model.Package{{
		Name:       "test",
		Classes:    []*model.Class{{Name: "Node"}},
		ValueTypes: []*model.ValueType{loop},
	}}}
	var diags diag.List
	p.Resolve(&diags)

	assert.Equal(t, []Record{{Index: 0, Kind: Simple}}, Describe(p, model.Value("Loop"), 0, nil))
}

func TestForFieldsUsesOffsets(t *testing.T) {
	p := program(t)
	fields := []model.Field{
		{Name: "count", Type: model.Plain("integer"), Offset: 0},
		{Name: "any", Type: model.Boxed(), Offset: 1},
		{Name: "owner", Type: model.Ref("Node"), Offset: 5},
	}
	assert.Equal(t, []Record{
		{Index: 1, Kind: Box},
		{Index: 5, Kind: Simple},
	}, ForFields(p, fields))
}

func TestVerifyExhaustiveComposite(t *testing.T) {
	p := program(t)
	fields := []model.Field{
		{Name: "a", Type: model.Ref("Node"), Offset: 0},
		{Name: "b", Type: model.Optional("Node"), Offset: 1},
		{Name: "c", Type: model.Boxed(), Offset: 3},
		{Name: "d", Type: model.OptionalValue("Pair"), Offset: 7},
		{Name: "e", Type: model.Value("Pair"), Offset: 12},
		{Name: "f", Type: model.Plain("double"), Offset: 16},
	}
	records := ForFields(p, fields)
	require.NoError(t, Verify(records, 17))
}

func TestWalkRootDecisions(t *testing.T) {
	p := program(t)
	records := Describe(p, model.OptionalValue("Pair"), 0, nil)
	// [flag, head, nextFlag, next, count]
	walk := func(slots []uint64) map[int]bool {
		roots := make(map[int]bool)
		visits := 0
		require.NoError(t, Walk(records, slots, func(slot int, root bool) {
			visits++
			if root {
				roots[slot] = true
			}
		}))
		assert.Equal(t, len(slots), visits)
		return roots
	}

	assert.Empty(t, walk([]uint64{0, 0xdead, 1, 0xbeef, 3}))
	assert.Equal(t, map[int]bool{1: true}, walk([]uint64{1, 0xdead, 0, 0, 3}))
	assert.Equal(t, map[int]bool{1: true, 3: true}, walk([]uint64{1, 0xdead, 1, 0xbeef, 3}))
}

func TestWalkBoxTag(t *testing.T) {
	records := []Record{{Index: 0, Kind: Box}}
	var roots []int
	visit := func(slot int, root bool) {
		if root {
			roots = append(roots, slot)
		}
	}

	require.NoError(t, Walk(records, []uint64{uint64(model.TagInteger), 42, 0, 0}, visit))
	assert.Empty(t, roots)
	require.NoError(t, Walk(records, []uint64{uint64(model.TagObject), 42, 0, 0}, visit))
	assert.Equal(t, []int{1}, roots)
}

func TestWalkDetectsOverlap(t *testing.T) {
	records := []Record{
		{Index: 0, Kind: Simple},
		{Index: 1, Condition: 0, Kind: Conditional},
	}
	err := Walk(records, make([]uint64, 2), func(int, bool) {})
	assert.ErrorIs(t, err, ErrDoubleVisit)
	assert.ErrorIs(t, Verify(records, 2), ErrDoubleVisit)
}

func TestWalkDetectsOutOfRange(t *testing.T) {
	err := Walk([]Record{{Index: 0, Kind: Box}}, make([]uint64, 2), func(int, bool) {})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestWalkFrameHonoursWindows(t *testing.T) {
	p := program(t)
	vars := []model.Var{
		{Name: "self", Type: model.Ref("Node")},
		{Name: "tmp", Type: model.Optional("Node")},
		{Name: "n", Type: model.Plain("integer")},
	}
	records := ForFrame(p, vars, []int{0, 1, 3}, []Window{{0, 20}, {5, 10}, {0, 20}})
	require.Len(t, records, 2)

	slots := []uint64{7, 1, 9, 4}
	rootsAt := func(pc int) []int {
		var roots []int
		visits := 0
		require.NoError(t, WalkFrame(records, slots, pc, func(slot int, root bool) {
			visits++
			if root {
				roots = append(roots, slot)
			}
		}))
		assert.Equal(t, 4, visits)
		return roots
	}

	assert.Equal(t, []int{0}, rootsAt(2))
	assert.Equal(t, []int{0, 2}, rootsAt(5))
	assert.Equal(t, []int{0}, rootsAt(10))
}

func TestRecordString(t *testing.T) {
	assert.Equal(t, "simple 3", Record{Index: 3, Kind: Simple}.String())
	assert.Equal(t, "conditional 4 if 3", Record{Index: 4, Condition: 3, Kind: Conditional}.String())
	assert.Equal(t, "conditional-skip if 0 else skip 2", Record{Index: 2, Kind: ConditionalSkip}.String())
}
