package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(id string, data Fields) *Snapshot {
	nd, err := normalizeFields(data)
	if err != nil {
		panic(err)
	}
	return &Snapshot{Ref: Ref{Collection: "posts", ID: id}, Exists: true, Data: nd, Version: 1}
}

func ids(snaps []*Snapshot) []string {
	out := make([]string, len(snaps))
	for i, s := range snaps {
		out[i] = s.Ref.ID
	}
	return out
}

func TestCompareValues_TypeRank(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()
	ordered := []any{nil, false, true, int64(-1), 0.5, int64(2), now, "", "a", []any{"x"}, Fields{"k": int64(1)}}
	for i := 0; i < len(ordered)-1; i++ {
		assert.Equal(t, -1, compareValues(ordered[i], ordered[i+1]), "%v < %v", ordered[i], ordered[i+1])
		assert.Equal(t, 1, compareValues(ordered[i+1], ordered[i]))
	}
	assert.Equal(t, 0, compareValues(int64(3), 3.0))
}

func TestQuery_FilterOrderLimit(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	docs := []*Snapshot{
		snap("a", Fields{"status": "active", "createdAt": base}),
		snap("b", Fields{"status": "hidden", "createdAt": base.Add(time.Hour)}),
		snap("c", Fields{"status": "active", "createdAt": base.Add(2 * time.Hour)}),
		snap("d", Fields{"status": "active"}),
		snap("e", Fields{"createdAt": base.Add(3 * time.Hour)}),
		snap("f", Fields{"status": "active", "createdAt": base}),
	}

	q := NewQuery("posts").
		Where("status", OpNotEqual, "hidden").
		OrderBy("createdAt", Desc)
	assert.Equal(t, []string{"c", "a", "f"}, ids(q.apply(docs)))
	assert.Equal(t, []string{"c", "a"}, ids(q.Limit(2).apply(docs)))
}

func TestQuery_PrefixRange(t *testing.T) {
	t.Parallel()
	docs := []*Snapshot{
		snap("1", Fields{"titleLower": "시험 공부"}),
		snap("2", Fields{"titleLower": "시험"}),
		snap("3", Fields{"titleLower": "시작"}),
		snap("4", Fields{"titleLower": "시험기간 후기"}),
		snap("5", Fields{"title": "시험 no derived field"}),
	}
	q := NewQuery("posts").
		Where("titleLower", OpGreaterOrEqual, "시험").
		Where("titleLower", OpLess, "시험\uf8ff").
		OrderBy("titleLower", Asc)
	assert.Equal(t, []string{"2", "1", "4"}, ids(q.apply(docs)))
}

func TestQuery_BuilderErrors(t *testing.T) {
	t.Parallel()
	q := NewQuery("posts").Where("a", "~=", 1)
	require.Error(t, q.Err())
	assert.ErrorIs(t, q.Err(), ErrInvalidValue)

	q = NewQuery("posts").Where("a", OpEqual, struct{}{})
	assert.ErrorIs(t, q.Err(), ErrInvalidValue)
}

func TestQuery_BuilderDoesNotAlias(t *testing.T) {
	t.Parallel()
	base := NewQuery("posts").Where("a", OpEqual, int64(1))
	left := base.Where("b", OpEqual, int64(2))
	right := base.Where("c", OpEqual, int64(3))
	assert.Len(t, base.filters, 1)
	assert.Equal(t, "b", left.filters[1].field)
	assert.Equal(t, "c", right.filters[1].field)
}

func TestCodec_PreservesTypes(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	in, err := normalizeFields(Fields{
		"count": 3,
		"ratio": 0.25,
		"at":    at,
		"tags":  []string{"a", "b"},
		"empty": []string{},
		"none":  nil,
		"ok":    true,
		"meta":  map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	raw, err := encodeFields(in)
	require.NoError(t, err)
	out, err := decodeFields(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(3), out["count"])
	assert.Equal(t, 0.25, out["ratio"])
	assert.True(t, at.Equal(out["at"].(time.Time)))
	assert.Equal(t, []any{"a", "b"}, out["tags"])
	assert.Equal(t, []any{}, out["empty"])
	assert.Nil(t, out["none"])
	assert.Contains(t, out, "none")
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, Fields{"k": "v"}, out["meta"])
}
