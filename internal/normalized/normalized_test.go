package normalized

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	language "github.com/russellyou/nadel/internal/language"
)

const petSchema = `
type Query {
  dog(id: ID!): Dog
  pets(kind: Kind = DOG): [Pet]
  animal: Animal
  search(filter: Filter): [Pet]
}
enum Kind { DOG CAT }
input Filter { kinds: [Kind!] name: String limit: Int }
interface Pet { name: String owner: Person }
type Dog implements Pet { name: String owner: Person barks: Boolean }
type Cat implements Pet { name: String owner: Person meows: Boolean }
type Person { name: String age: Int }
union Animal = Dog | Cat
`

func loadSchema(t *testing.T) *language.Schema {
	t.Helper()
	s, err := language.LoadSchema(&language.Source{Name: "pets.graphql", Input: petSchema})
	require.NoError(t, err)
	return s
}

func normalize(t *testing.T, s *language.Schema, query, opName string, vars map[string]any) *Operation {
	t.Helper()
	doc, errs := language.LoadQuery(s, query)
	require.Empty(t, errs)
	op, err := Normalize(s, doc, opName, vars)
	require.NoError(t, err)
	require.NoError(t, op.Tree.Check())
	return op
}

const petQuery = `
query Q($id: ID!, $withOwner: Boolean!, $kind: Kind) {
  dog(id: $id) { name ...F owner @include(if: $withOwner) { name } }
  pets(kind: $kind) {
    __typename
    name
    ... on Dog { barks }
    ... on Cat { meows owner { age } }
  }
  animal { ... on Dog { name } ... on Cat { name } }
}
fragment F on Dog { barks }
`

const petTree = `dog(id: "d1") [Query]
  name [Dog]
  barks [Dog]
pets(kind: CAT) [Query]
  __typename [Dog Cat]
  name [Dog Cat]
  barks [Dog]
  meows [Cat]
  owner [Cat]
    age [Person]
animal [Query]
  name [Dog Cat]
`

func TestNormalize(t *testing.T) {
	s := loadSchema(t)
	op := normalize(t, s, petQuery, "Q", map[string]any{"id": "d1", "withOwner": false, "kind": "CAT"})

	require.Equal(t, language.Query, op.Kind)
	require.Equal(t, "Q", op.Name)
	require.Equal(t, "Query", op.RootType)
	if diff := cmp.Diff(petTree, op.Tree.Format(op.Roots...)); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}

	pets := op.Tree.Field(op.Roots[1])
	owner := op.Tree.Field(pets.Children[4])
	require.Equal(t, []string{"pets", "owner", "age"}, op.Tree.QueryPath(owner.Children[0]))
}

func TestNormalizeDirectivesAndAliases(t *testing.T) {
	s := loadSchema(t)
	op := normalize(t, s, `
query {
  first: dog(id: "a") { name @skip(if: true) barks }
  second: dog(id: "b") { n: name }
  dog(id: "c") @skip(if: false) { owner { name } owner { age } }
}`, "", nil)

	want := `first: dog(id: "a") [Query]
  barks [Dog]
second: dog(id: "b") [Query]
  n: name [Dog]
dog(id: "c") [Query]
  owner [Dog]
    name [Person]
    age [Person]
`
	if diff := cmp.Diff(want, op.Tree.Format(op.Roots...)); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "first", op.Tree.Field(op.Roots[0]).ResultKey())
	require.Equal(t, "dog", op.Tree.Field(op.Roots[2]).ResultKey())
}

func TestNormalizeSplitsDivergingSelections(t *testing.T) {
	s := loadSchema(t)
	op := normalize(t, s, `{ pets { ... on Dog { owner { name } } ... on Cat { owner { age } } } }`, "", nil)

	want := `pets [Query]
  owner [Dog]
    name [Person]
  owner [Cat]
    age [Person]
`
	if diff := cmp.Diff(want, op.Tree.Format(op.Roots...)); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeVariables(t *testing.T) {
	s := loadSchema(t)
	op := normalize(t, s, `query ($f: Filter, $missing: Kind) {
  search(filter: $f) { name }
  pets(kind: $missing) { name }
}`, "", map[string]any{
		"f": map[string]any{"kinds": []any{"DOG", "CAT"}, "name": "Rex", "limit": float64(3)},
	})

	want := `search(filter: {kinds:[DOG,CAT],limit:3,name:"Rex"}) [Query]
  name [Dog Cat]
pets [Query]
  name [Dog Cat]
`
	if diff := cmp.Diff(want, op.Tree.Format(op.Roots...)); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeUnknownOperation(t *testing.T) {
	s := loadSchema(t)
	doc, errs := language.LoadQuery(s, `query A { animal { __typename } } query B { animal { __typename } }`)
	require.Empty(t, errs)

	_, err := Normalize(s, doc, "C", nil)
	require.ErrorContains(t, err, `unknown operation "C"`)
	_, err = Normalize(s, doc, "", nil)
	require.ErrorContains(t, err, "operation name is required")
}

func TestCompileRoundTrip(t *testing.T) {
	s := loadSchema(t)
	op := normalize(t, s, petQuery, "Q", map[string]any{"id": "d1", "withOwner": false, "kind": "CAT"})

	doc, err := Compile(op.Tree, op.Roots, op.Kind, "Q", s)
	require.NoError(t, err)
	printed := language.FormatQuery(doc)

	again := normalize(t, s, printed, "Q", nil)
	if diff := cmp.Diff(petTree, again.Tree.Format(again.Roots...)); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s\nprinted:\n%s", diff, printed)
	}
}

func TestCompileWrapsUnionMembers(t *testing.T) {
	s := loadSchema(t)
	tree := NewTree()
	name := tree.Add(Field{Name: "name", ObjectTypeNames: []string{"Dog", "Cat"}})
	typename := tree.Add(Field{Name: "__typename", Alias: "kind", ObjectTypeNames: []string{"Dog", "Cat"}})
	animal := tree.Add(Field{Name: "animal", ObjectTypeNames: []string{"Query"}, Children: []ID{typename, name}})

	doc, err := Compile(tree, []ID{animal}, language.Query, "", s)
	require.NoError(t, err)

	sel := doc.Operations[0].SelectionSet[0].(*language.Field)
	require.Len(t, sel.SelectionSet, 3)
	require.Equal(t, "kind", sel.SelectionSet[0].(*language.Field).Alias)
	require.Equal(t, "Dog", sel.SelectionSet[1].(*language.InlineFragment).TypeCondition)
	require.Equal(t, "Cat", sel.SelectionSet[2].(*language.InlineFragment).TypeCondition)

	_, errs := language.LoadQuery(s, language.FormatQuery(doc))
	require.Empty(t, errs)
}

func TestCompileUnknownField(t *testing.T) {
	s := loadSchema(t)
	tree := NewTree()
	child := tree.Add(Field{Name: "wings", ObjectTypeNames: []string{"Dog"}})
	dog := tree.Add(Field{Name: "dog", ObjectTypeNames: []string{"Query"}, Children: []ID{child}})
	grand := tree.Add(Field{Name: "x", ObjectTypeNames: []string{"Dog"}})
	tree.Attach(child, grand)

	_, err := Compile(tree, []ID{dog}, language.Query, "", s)
	require.ErrorContains(t, err, `field "wings" not found on type "Dog"`)
}

func TestTreeReparenting(t *testing.T) {
	tree := NewTree()
	a := tree.Add(Field{Name: "a", ObjectTypeNames: []string{"T"}})
	b := tree.Add(Field{Name: "b", ObjectTypeNames: []string{"T"}})
	c := tree.Add(Field{Name: "c", ObjectTypeNames: []string{"T"}})
	p1 := tree.Add(Field{Name: "p1", ObjectTypeNames: []string{"Query"}, Children: []ID{a, b}})
	p2 := tree.Add(Field{Name: "p2", ObjectTypeNames: []string{"Query"}})
	require.NoError(t, tree.Check())

	t.Run("attach moves a child", func(t *testing.T) {
		tree.Attach(p2, b)
		require.Equal(t, []ID{a}, tree.Field(p1).Children)
		require.Equal(t, []ID{b}, tree.Field(p2).Children)
		require.Equal(t, p2, tree.Field(b).Parent)
		require.NoError(t, tree.Check())
	})

	t.Run("set children steals and releases", func(t *testing.T) {
		tree.SetChildren(p1, []ID{b, c})
		require.Equal(t, NoID, tree.Field(a).Parent)
		require.Empty(t, tree.Field(p2).Children)
		require.Equal(t, p1, tree.Field(c).Parent)
		require.NoError(t, tree.Check())
	})

	t.Run("detach", func(t *testing.T) {
		tree.Detach(b)
		require.Equal(t, []ID{c}, tree.Field(p1).Children)
		require.Equal(t, NoID, tree.Field(b).Parent)
		require.NoError(t, tree.Check())
	})

	t.Run("check catches inconsistencies", func(t *testing.T) {
		tree.Field(c).Parent = p2
		require.Error(t, tree.Check())
		tree.Field(c).Parent = p1
		require.NoError(t, tree.Check())
	})
}

func TestValueFromAny(t *testing.T) {
	s := loadSchema(t)
	filter := &language.Type{NamedType: "Filter"}
	listOfKind := &language.Type{Elem: &language.Type{NamedType: "Kind"}}

	for _, tc := range []struct {
		name string
		in   any
		typ  *language.Type
		want string
	}{
		{"null", nil, nil, "null"},
		{"string", "x", &language.Type{NamedType: "String"}, `"x"`},
		{"enum", "CAT", &language.Type{NamedType: "Kind"}, "CAT"},
		{"int", float64(42), &language.Type{NamedType: "Int"}, "42"},
		{"float", float64(1), &language.Type{NamedType: "Float"}, "1"},
		{"fraction", 1.5, nil, "1.5"},
		{"bool", true, nil, "true"},
		{"single item list", "DOG", listOfKind, "[DOG]"},
		{"object", map[string]any{"name": "a", "kinds": []any{"DOG"}}, filter, `{kinds:[DOG],name:"a"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ValueFromAny(tc.in, tc.typ, s).String())
		})
	}

	require.Equal(t, language.FloatValue, ValueFromAny(float64(1), &language.Type{NamedType: "Float"}, s).Kind)
}
