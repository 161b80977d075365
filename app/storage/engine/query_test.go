package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryMap(t *testing.T) {
	qmap := NewQueryMap().
		Add(1, Query{
			Sqlite:   "SELECT * FROM models WHERE id = ?",
			Postgres: "SELECT * FROM models WHERE id = $1",
		}).
		Add(2, Query{
			Sqlite:   "INSERT INTO samples VALUES (?)",
			Postgres: "INSERT INTO samples VALUES ($1)",
		})

	tests := []struct {
		name    string
		dbType  Type
		cmd     DBCmd
		want    string
		wantErr string
	}{
		{name: "sqlite select", dbType: Sqlite, cmd: 1, want: "SELECT * FROM models WHERE id = ?"},
		{name: "postgres select", dbType: Postgres, cmd: 1, want: "SELECT * FROM models WHERE id = $1"},
		{name: "postgres insert", dbType: Postgres, cmd: 2, want: "INSERT INTO samples VALUES ($1)"},
		{name: "unknown db type", dbType: Unknown, cmd: 1, wantErr: `unsupported database type ""`},
		{name: "unknown command", dbType: Sqlite, cmd: 99, wantErr: "unsupported command 99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := qmap.Pick(tt.dbType, tt.cmd)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryMap_AddSame(t *testing.T) {
	qmap := NewQueryMap().
		AddSame(1, "SELECT * FROM models").
		AddSame(2, "SELECT * FROM models WHERE gid = ? AND name = '?' AND id > ?")

	q, err := qmap.Pick(Sqlite, 1)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM models", q)
	q, err = qmap.Pick(Postgres, 1)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM models", q)

	q, err = qmap.Pick(Sqlite, 2)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM models WHERE gid = ? AND name = '?' AND id > ?", q)
	q, err = qmap.Pick(Postgres, 2)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM models WHERE gid = $1 AND name = '?' AND id > $2", q)
}

func TestQueryMap_Overwrite(t *testing.T) {
	qmap := NewQueryMap().
		Add(1, Query{Sqlite: "query1 sqlite", Postgres: "query1 postgres"}).
		Add(1, Query{Sqlite: "query1 sqlite new", Postgres: "query1 postgres new"})

	query, err := qmap.Pick(Sqlite, 1)
	require.NoError(t, err)
	assert.Equal(t, "query1 sqlite new", query)

	// empty queries are valid
	qmap.Add(2, Query{Postgres: "not empty"})
	query, err = qmap.Pick(Sqlite, 2)
	require.NoError(t, err)
	assert.Empty(t, query)
}
