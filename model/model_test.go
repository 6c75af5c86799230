package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/tessera/diag"
)

const shapesYAML = `
packages:
  - name: shapes
    version: {major: 1, minor: 2}
    protocols:
      - name: Drawable
        methods:
          - name: draw
            returns: plain integer
    value-types:
      - name: Point
        fields:
          - {name: x, type: plain double}
          - {name: y, type: plain double}
    classes:
      - name: Shape
        fields:
          - {name: origin, type: value Point}
        methods:
          - name: area
            returns: plain double
        initializers:
          - name: init
      - name: Circle
        superclass: Shape
        protocols: [Drawable]
        inherits-initializers: true
        fields:
          - {name: radius, type: plain double}
          - {name: parent, type: optional Shape}
        methods:
          - name: area
            overriding: true
            returns: plain double
          - name: draw
            returns: plain integer
            body:
              - op: return
                value: {op: int, int: 7, type: plain integer}
    functions:
      - name: main
        start: true
        native: 0
`

func loadShapes(t *testing.T) (*Program, *diag.List) {
	t.Helper()
	p, err := Decode([]byte(shapesYAML), YAML, "shapes.yaml")
	require.NoError(t, err)
	var diags diag.List
	p.Resolve(&diags)
	return p, &diags
}

func TestDecodeAndResolve(t *testing.T) {
	p, diags := loadShapes(t)
	require.Zero(t, diags.Len(), diags.Err())

	shape, circle := p.Class("Shape"), p.Class("Circle")
	require.NotNil(t, shape)
	require.NotNil(t, circle)

	assert.Same(t, shape, circle.Super)
	assert.Equal(t, 0, shape.Index)
	assert.Equal(t, 1, circle.Index)
	assert.Equal(t, 1, circle.Depth())
	assert.True(t, circle.IsSubclassOf(shape))
	assert.False(t, shape.IsSubclassOf(circle))
	assert.Equal(t, []*Class{shape}, circle.Superclasses())

	require.Len(t, circle.Conforms, 1)
	assert.Same(t, p.Protocol("Drawable"), circle.Conforms[0])

	area := circle.LookupMethod("area")
	require.NotNil(t, area)
	assert.Equal(t, KindMethod, area.Kind)
	assert.Equal(t, Public, area.Access)
	assert.Same(t, circle, area.OwnerClass())
	assert.Equal(t, "Circle.area", area.QualifiedName())
	assert.Equal(t, Plain("double"), area.Returns)

	assert.Same(t, shape.Initializers[0], circle.LookupInitializer("init"))
	assert.Equal(t, "shapes.yaml", area.Pos.File)

	start := p.StartFunction()
	require.NotNil(t, start)
	assert.Equal(t, "main", start.Name)
	assert.True(t, start.InFunctionDomain())
	assert.False(t, p.Packages[0].RequiresNativeLinking())
}

func TestAllFieldsIncludesInherited(t *testing.T) {
	p, _ := loadShapes(t)
	var names []string
	for _, f := range p.Class("Circle").AllFields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"origin", "radius", "parent"}, names)

	f, ok := p.Class("Circle").Field("origin")
	require.True(t, ok)
	assert.Equal(t, Value("Point"), f.Type)
}

func TestResolveReportsUnknownNames(t *testing.T) {
	const src = `
packages:
  - name: broken
    classes:
      - name: A
        superclass: Missing
        protocols: [Nope]
        fields:
          - {name: v, type: value Ghost}
      - name: A
`
	p, err := Decode([]byte(src), YAML, "")
	require.NoError(t, err)
	var diags diag.List
	p.Resolve(&diags)

	assert.Equal(t, 4, diags.Count(diag.Fatal))
	assert.Contains(t, diags.Err().Error(), "superclass Missing of A is not declared")
	assert.Contains(t, diags.Err().Error(), "protocol Nope is not declared")
	assert.Contains(t, diags.Err().Error(), "value type Ghost is not declared")
	assert.Contains(t, diags.Err().Error(), "A is already declared")
}

func TestResolveBreaksInheritanceCycles(t *testing.T) {
	p := &Program{Packages: []*Package{{
		Name: "loop",
		Classes: []*Class{
			{Name: "C", Superclass: "A"},
			{Name: "A", Superclass: "B"},
			{Name: "B", Superclass: "A"},
		},
	}}}
	var diags diag.List
	p.Resolve(&diags)

	assert.Equal(t, 1, diags.Count(diag.Fatal))
	for _, c := range p.Classes() {
		assert.Less(t, c.Depth(), 3, c.Name)
	}
}

func TestSortByDepth(t *testing.T) {
	a := &Class{Name: "A"}
	b := &Class{Name: "B", Super: a}
	c := &Class{Name: "C", Super: b}
	d := &Class{Name: "D"}
	assert.Equal(t, []*Class{a, d, b, c}, SortByDepth([]*Class{c, a, b, d}))
}

func TestSlotSize(t *testing.T) {
	p, _ := loadShapes(t)
	p.ValueType("Point").Size = 2

	tests := []struct {
		t    TypeRef
		want int
	}{
		{Nothing(), 0},
		{Plain("integer"), 1},
		{Ref("Shape"), 1},
		{Optional("Shape"), 2},
		{Boxed(), BoxSlots},
		{Value("Point"), 2},
		{OptionalValue("Point"), 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.SlotSize(tt.t), tt.t.String())
	}
}

func TestParseTypeRef(t *testing.T) {
	ref, err := ParseTypeRef("optional Node")
	require.NoError(t, err)
	assert.Equal(t, Optional("Node"), ref)

	ref, err = ParseTypeRef("")
	require.NoError(t, err)
	assert.Equal(t, Nothing(), ref)

	_, err = ParseTypeRef("value")
	assert.Error(t, err)
	_, err = ParseTypeRef("pointer Foo")
	assert.Error(t, err)
}

func TestSameRepresentation(t *testing.T) {
	assert.True(t, Ref("A").SameRepresentation(Ref("B")))
	assert.True(t, TypeRef{}.SameRepresentation(Nothing()))
	assert.False(t, Value("P").SameRepresentation(Value("Q")))
	assert.False(t, Plain("integer").SameRepresentation(Boxed()))
}

func TestCBORRoundTrip(t *testing.T) {
	p, _ := loadShapes(t)
	data, err := EncodeCBOR(p)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "shapes.cbor")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	back, err := Load(path)
	require.NoError(t, err)
	var diags diag.List
	back.Resolve(&diags)
	require.Zero(t, diags.Len())

	circle := back.Class("Circle")
	require.NotNil(t, circle)
	assert.Equal(t, "Shape", circle.Superclass)
	draw := circle.OwnMethod("draw")
	require.NotNil(t, draw)
	require.Len(t, draw.Body, 1)
	assert.Equal(t, OpReturn, draw.Body[0].Op)
	assert.Equal(t, int64(7), draw.Body[0].Value.Int)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load("program.json")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}
