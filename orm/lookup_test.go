package orm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startdusk/relorm/orm/model"
)

func TestLookup(t *testing.T) {
	r := model.NewRegistry()
	_, err := r.Register(&TestModel{}, model.WithAlias("name", "FirstName"))
	require.NoError(t, err)
	db, _ := newMockDB(t, DBWithRegistry(r))

	entity := &TestModel{ID: 1, FirstName: "Tom", Age: 18}
	cases := []struct {
		name   string
		entity any
		lookup string
		want   LookupResult
	}{
		{
			name:   "column",
			entity: entity,
			lookup: "first_name",
			want:   LookupResult{Kind: LookupAttribute, Column: "first_name", Value: "Tom"},
		},
		{
			name:   "go name",
			entity: entity,
			lookup: "Age",
			want:   LookupResult{Kind: LookupAttribute, Column: "age", Value: int8(18)},
		},
		{
			name:   "alias",
			entity: entity,
			lookup: "name",
			want:   LookupResult{Kind: LookupAttribute, Column: "first_name", Value: "Tom"},
		},
		{
			name:   "not found",
			entity: entity,
			lookup: "Nope",
			want:   LookupResult{Kind: LookupNotFound},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := Lookup(db, c.entity, c.lookup)
			require.NoError(t, err)
			assert.Equal(t, c.want, res)
		})
	}
}

func TestLookup_Relation(t *testing.T) {
	db, _ := newMockDB(t)
	res, err := Lookup(db, &Author{ID: 1}, "Books")
	require.NoError(t, err)
	assert.Equal(t, LookupRelationship, res.Kind)
	require.NotNil(t, res.Relation)
	assert.Equal(t, "Books", res.Relation.Name())

	// 列名优先于关联名
	res, err = Lookup(db, &Book{AuthorID: nullInt(2)}, "author_id")
	require.NoError(t, err)
	assert.Equal(t, LookupAttribute, res.Kind)
	assert.Equal(t, nullInt(2), res.Value)

	_, err = Lookup(db, Author{}, "Books")
	assert.Error(t, err)
}
