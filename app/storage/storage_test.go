package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-pkgz/testutils/containers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/umputun/sms-spam/app/storage/engine"
)

// engineProvider defines a function type that provides a test database engine
type engineProvider func(t *testing.T, ctx context.Context) (db *engine.SQL, teardown func())

// database providers for each supported engine
var providers = map[string]engineProvider{
	"sqlite": func(t *testing.T, _ context.Context) (*engine.SQL, func()) {
		db, err := engine.NewSqlite(filepath.Join(t.TempDir(), "storage.db"), "gr1")
		require.NoError(t, err)
		return db, func() { db.Close() }
	},
	"postgres": func(t *testing.T, ctx context.Context) (*engine.SQL, func()) {
		pg := containers.NewPostgresTestContainer(ctx, t)
		db, err := engine.NewPostgres(ctx, pg.ConnectionString(), "gr1")
		require.NoError(t, err)
		return db, func() {
			db.Close()
			assert.NoError(t, pg.Close(ctx))
		}
	},
}

type testDB struct {
	DB       *engine.SQL
	teardown func()
}

// StorageTestSuite runs storage tests against every enabled engine.
// Postgres needs docker and enabled with STORAGE_TEST_POSTGRES=1.
type StorageTestSuite struct {
	suite.Suite
	dbs map[string]testDB
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}

func (s *StorageTestSuite) SetupSuite() {
	s.dbs = make(map[string]testDB)
	ctx := context.Background()
	for name, provider := range providers {
		if name == "postgres" && (testing.Short() || os.Getenv("STORAGE_TEST_POSTGRES") == "") {
			s.T().Log("postgres tests skipped")
			continue
		}
		db, teardown := provider(s.T(), ctx)
		s.dbs[name] = testDB{DB: db, teardown: teardown}
	}
}

func (s *StorageTestSuite) TearDownSuite() {
	for _, db := range s.dbs {
		db.teardown()
	}
}

func (s *StorageTestSuite) getTestDB() []testDB {
	res := make([]testDB, 0, len(s.dbs))
	for _, db := range s.dbs {
		res = append(res, db)
	}
	return res
}

func TestDbgText(t *testing.T) {
	assert.Equal(t, "short", dbgText("short"))
	long := dbgText(string(make([]byte, 300)))
	assert.Len(t, long, 256+3)

	// multi-byte runes are never split
	cyr := dbgText(strings.Repeat("привет ", 50))
	assert.True(t, utf8.ValidString(cyr), cyr)
	assert.Equal(t, 256+3, utf8.RuneCountInString(cyr))
	assert.True(t, strings.HasSuffix(cyr, "..."))
	assert.Equal(t, strings.Repeat("é", 256), dbgText(strings.Repeat("é", 256)), "256 runes kept whole")
}
