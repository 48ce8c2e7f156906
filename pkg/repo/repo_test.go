package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func (f *fakeResult) Next(context.Context) bool {
	if f.idx < len(f.records) {
		f.idx++
		return true
	}
	return false
}

func (f *fakeResult) Record() *neo4j.Record { return f.records[f.idx-1] }
func (f *fakeResult) Err() error            { return f.err }

type call struct {
	cypher string
	params map[string]any
}

type fakeSession struct {
	results []*fakeResult
	err     error
	calls   []call
	closed  int
}

func (f *fakeSession) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	f.calls = append(f.calls, call{cypher, params})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &fakeResult{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func (f *fakeSession) Close(context.Context) error {
	f.closed++
	return nil
}

type station struct {
	Code string
	Name string
}

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Labels: []string{"Station"}, Props: props}}}
}

func stationFromRecord(rec *neo4j.Record) (station, error) {
	n, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return station{}, err
	}
	code, _ := n.Props["code"].(string)
	name, _ := n.Props["name"].(string)
	return station{Code: code, Name: name}, nil
}

func newStations(s *fakeSession) *Neo4jRepo[station, string] {
	return NewNeo4jRepo[station, string](
		func(context.Context) Session { return s },
		"Station",
		func(st station) map[string]any { return map[string]any{"code": st.Code, "name": st.Name} },
		stationFromRecord,
		WithIDKey[station, string]("code"),
	)
}

func TestGet(t *testing.T) {
	s := &fakeSession{results: []*fakeResult{{records: []*neo4j.Record{nodeRecord(map[string]any{"code": "AMS", "name": "Schiphol"})}}}}
	got, err := newStations(s).Get(context.Background(), "AMS")
	require.NoError(t, err)
	assert.Equal(t, station{"AMS", "Schiphol"}, got)
	assert.Equal(t, "MATCH (n:Station {code: $id}) RETURN n", s.calls[0].cypher)
	assert.Equal(t, "AMS", s.calls[0].params["id"])
	assert.Equal(t, 1, s.closed)
}

func TestGetNotFound(t *testing.T) {
	_, err := newStations(&fakeSession{}).Get(context.Background(), "ZZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetErrors(t *testing.T) {
	boom := errors.New("db down")
	_, err := newStations(&fakeSession{err: boom}).Get(context.Background(), "AMS")
	assert.ErrorIs(t, err, boom)

	_, err = newStations(&fakeSession{results: []*fakeResult{{err: boom}}}).Get(context.Background(), "AMS")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	bad := &neo4j.Record{Keys: []string{"n"}, Values: []any{"not a node"}}
	_, err = newStations(&fakeSession{results: []*fakeResult{{records: []*neo4j.Record{bad}}}}).Get(context.Background(), "AMS")
	assert.ErrorContains(t, err, "decode")
}

func TestList(t *testing.T) {
	s := &fakeSession{results: []*fakeResult{{records: []*neo4j.Record{
		nodeRecord(map[string]any{"code": "AMS"}),
		nodeRecord(map[string]any{"code": "LHR"}),
	}}}}
	got, err := newStations(s).List(context.Background(), ListOpts{Offset: 5})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, s.calls[0].cypher, "ORDER BY n.code")
	assert.Equal(t, int64(DefaultLimit), s.calls[0].params["limit"])
	assert.Equal(t, int64(5), s.calls[0].params["offset"])
}

func TestListStreamError(t *testing.T) {
	s := &fakeSession{results: []*fakeResult{{err: errors.New("reset")}}}
	_, err := newStations(s).List(context.Background(), ListOpts{Limit: 1})
	assert.ErrorContains(t, err, "reset")
}

func TestUpsert(t *testing.T) {
	s := &fakeSession{results: []*fakeResult{{records: []*neo4j.Record{nodeRecord(map[string]any{"code": "CDG", "name": "Paris"})}}}}
	got, err := newStations(s).Upsert(context.Background(), station{"CDG", "Paris"})
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.Name)
	assert.Equal(t, "MERGE (n:Station {code: $id}) SET n += $props RETURN n", s.calls[0].cypher)

	_, err = newStations(&fakeSession{}).Upsert(context.Background(), station{Name: "nameless"})
	assert.ErrorContains(t, err, "without code")
}

func TestDeleteAndCount(t *testing.T) {
	s := &fakeSession{results: []*fakeResult{
		{},
		{records: []*neo4j.Record{{Keys: []string{"count"}, Values: []any{int64(7)}}}},
	}}
	r := newStations(s)
	require.NoError(t, r.Delete(context.Background(), "AMS"))
	assert.Contains(t, s.calls[0].cypher, "DETACH DELETE")

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "HAS_ORIGIN", Identifier("HAS_ORIGIN"))
	assert.Equal(t, "Airport", Identifier("Air port`)"))
	assert.Equal(t, "", Identifier("--"))
	assert.Equal(t, "Zrich", Identifier("Zürich"))

	assert.Panics(t, func() {
		NewNeo4jRepo[station, string](nil, "Bad Label", nil, nil)
	})
}
