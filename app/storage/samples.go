package storage

import (
	"context"
	"fmt"
	"iter"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/sms-spam/app/storage/engine"
	"github.com/umputun/sms-spam/lib/dataset"
)

// Samples is a storage for labeled messages. Messages keep insertion order, duplicates allowed,
// so a dataset imported and read back is the same dataset.
type Samples struct {
	*engine.SQL
	engine.RWLocker
}

// Sample is a stored labeled message
type Sample struct {
	ID        int64         `db:"id"`
	Timestamp time.Time     `db:"timestamp"`
	Label     dataset.Class `db:"label"`
	Message   string        `db:"message"`
}

// SamplesStats is a per-class count of stored samples
type SamplesStats struct {
	Spam int `db:"spam_count"`
	Ham  int `db:"ham_count"`
}

// String provides a string representation of the statistics
func (st SamplesStats) String() string {
	return fmt.Sprintf("spam: %d, ham: %d", st.Spam, st.Ham)
}

// samples-related command constants
const (
	CmdCreateSamplesTable engine.DBCmd = iota + 100
	CmdCreateSamplesIndexes
	CmdAddSample
)

var samplesQueries = engine.NewQueryMap().
	Add(CmdCreateSamplesTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid TEXT NOT NULL DEFAULT '',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			label TEXT NOT NULL CHECK (label IN ('ham', 'spam')),
			message TEXT NOT NULL
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS samples (
			id BIGSERIAL PRIMARY KEY,
			gid TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			label TEXT NOT NULL CHECK (label IN ('ham', 'spam')),
			message TEXT NOT NULL
		)`,
	}).
	AddSame(CmdCreateSamplesIndexes, `
		CREATE INDEX IF NOT EXISTS idx_samples_gid ON samples(gid);
		CREATE INDEX IF NOT EXISTS idx_samples_gid_label ON samples(gid, label)`).
	AddSame(CmdAddSample, `INSERT INTO samples (gid, timestamp, label, message) VALUES (?, ?, ?, ?)`)

// NewSamples creates a new Samples storage
func NewSamples(ctx context.Context, db *engine.SQL) (*Samples, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}
	res := &Samples{SQL: db, RWLocker: db.MakeLock()}
	cfg := engine.TableConfig{
		Name:          "samples",
		CreateTable:   CmdCreateSamplesTable,
		CreateIndexes: CmdCreateSamplesIndexes,
		MigrateFunc:   res.migrate,
		QueriesMap:    samplesQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init samples storage: %w", err)
	}
	return res, nil
}

// Add adds a single labeled message
func (s *Samples) Add(ctx context.Context, msg dataset.Message) error {
	log.Printf("[DEBUG] adding sample: %s, %q", msg.Class(), dbgText(msg.Text))
	if msg.Text == "" {
		return fmt.Errorf("message can't be empty")
	}

	s.Lock()
	defer s.Unlock()

	query, err := samplesQueries.Pick(s.Type(), CmdAddSample)
	if err != nil {
		return fmt.Errorf("failed to get query: %w", err)
	}
	if _, err := s.ExecContext(ctx, query, s.GID(), time.Now(), msg.Class(), msg.Text); err != nil {
		return fmt.Errorf("failed to add sample: %w", err)
	}
	return nil
}

// Import adds all messages of the dataset in a single transaction.
// If withCleanup is true removes all samples of the group before import.
func (s *Samples) Import(ctx context.Context, ds dataset.Dataset, withCleanup bool) (SamplesStats, error) {
	gid := s.GID()

	s.Lock()
	defer s.Unlock()

	tx, err := s.BeginTxx(ctx, nil)
	if err != nil {
		return SamplesStats{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if withCleanup {
		result, errDel := tx.ExecContext(ctx, s.Adopt(`DELETE FROM samples WHERE gid = ?`), gid)
		if errDel != nil {
			return SamplesStats{}, fmt.Errorf("failed to remove old samples: %w", errDel)
		}
		affected, errCount := result.RowsAffected()
		if errCount != nil {
			return SamplesStats{}, fmt.Errorf("failed to get affected rows: %w", errCount)
		}
		log.Printf("[DEBUG] removed %d old samples, gid=%s", affected, gid)
	}

	query, err := samplesQueries.Pick(s.Type(), CmdAddSample)
	if err != nil {
		return SamplesStats{}, fmt.Errorf("failed to get import query: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return SamplesStats{}, fmt.Errorf("failed to prepare import query: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i, msg := range ds {
		if msg.Text == "" {
			return SamplesStats{}, fmt.Errorf("message %d is empty", i)
		}
		if _, err = stmt.ExecContext(ctx, gid, now, msg.Class(), msg.Text); err != nil {
			return SamplesStats{}, fmt.Errorf("failed to add sample %d: %w", i, err)
		}
	}

	st, err := s.stats(ctx, tx)
	if err != nil {
		return SamplesStats{}, err
	}
	if err = tx.Commit(); err != nil {
		return SamplesStats{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	log.Printf("[DEBUG] imported %d samples, gid=%s, %s", len(ds), gid, st)
	return st, nil
}

// Delete removes a sample by its ID
func (s *Samples) Delete(ctx context.Context, id int64) error {
	log.Printf("[DEBUG] deleting sample: %d", id)
	s.Lock()
	defer s.Unlock()

	result, err := s.ExecContext(ctx, s.Adopt(`DELETE FROM samples WHERE gid = ? AND id = ?`), s.GID(), id)
	if err != nil {
		return fmt.Errorf("failed to remove sample: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sample %d: %w", id, ErrNotFound)
	}
	return nil
}

// Read returns all samples of the group in insertion order
func (s *Samples) Read(ctx context.Context) ([]Sample, error) {
	s.RLock()
	defer s.RUnlock()

	var res []Sample
	query := s.Adopt(`SELECT id, timestamp, label, message FROM samples WHERE gid = ? ORDER BY id`)
	if err := s.SelectContext(ctx, &res, query, s.GID()); err != nil {
		return nil, fmt.Errorf("failed to get samples: %w", err)
	}
	for i := range res {
		res[i].Timestamp = res[i].Timestamp.Local()
	}
	return res, nil
}

// Iterator returns messages of the group in insertion order.
// The iterator respects context cancellation.
func (s *Samples) Iterator(ctx context.Context) (iter.Seq2[dataset.Message, error], error) {
	query := s.Adopt(`SELECT label, message FROM samples WHERE gid = ? ORDER BY id`)

	s.RLock()
	rows, err := s.QueryxContext(ctx, query, s.GID())
	s.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}

	return func(yield func(dataset.Message, error) bool) {
		defer rows.Close()
		for rows.Next() {
			if ctx.Err() != nil {
				yield(dataset.Message{}, ctx.Err())
				return
			}
			var label, text string
			if err := rows.Scan(&label, &text); err != nil {
				yield(dataset.Message{}, fmt.Errorf("scan failed: %w", err))
				return
			}
			spam, err := dataset.ParseClass(label)
			if err != nil {
				yield(dataset.Message{}, err)
				return
			}
			if !yield(dataset.Message{Text: text, Spam: spam}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(dataset.Message{}, fmt.Errorf("rows iteration failed: %w", err))
		}
	}, nil
}

// Dataset collects all samples of the group into a dataset, order is the insertion order
func (s *Samples) Dataset(ctx context.Context) (dataset.Dataset, error) {
	it, err := s.Iterator(ctx)
	if err != nil {
		return nil, err
	}
	var res dataset.Dataset
	for msg, err := range it {
		if err != nil {
			return nil, fmt.Errorf("failed to read sample %d: %w", len(res), err)
		}
		res = append(res, msg)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no samples for gid %q: %w", s.GID(), ErrNotFound)
	}
	log.Printf("[DEBUG] read %d samples, gid=%s", len(res), s.GID())
	return res, nil
}

// Stats returns per-class counts of the group samples
func (s *Samples) Stats(ctx context.Context) (SamplesStats, error) {
	s.RLock()
	defer s.RUnlock()
	return s.stats(ctx, s.SQL)
}

// stats returns statistics about samples without locking, q is either db or transaction
func (s *Samples) stats(ctx context.Context, q sqlx.QueryerContext) (SamplesStats, error) {
	query := s.Adopt(`
		SELECT
			COUNT(CASE WHEN label = 'spam' THEN 1 END) as spam_count,
			COUNT(CASE WHEN label = 'ham' THEN 1 END) as ham_count
		FROM samples
		WHERE gid = ?`)

	var st SamplesStats
	if err := sqlx.GetContext(ctx, q, &st, query, s.GID()); err != nil {
		return SamplesStats{}, fmt.Errorf("failed to get stats: %w", err)
	}
	return st, nil
}

func (s *Samples) migrate(_ context.Context, _ *sqlx.Tx, _ string) error {
	// no migration needed for now
	return nil
}
