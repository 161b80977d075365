package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/sms-spam/app/storage/engine"
	"github.com/umputun/sms-spam/lib/smsspam"
)

// Models is a storage for trained classifiers with their evaluation scores
type Models struct {
	*engine.SQL
	engine.RWLocker
}

// ModelInfo is a stored model summary, without the classifier itself
type ModelInfo struct {
	ID         int64              `db:"id"`
	Timestamp  time.Time          `db:"timestamp"`
	Vectorizer string             `db:"vectorizer"`
	VocabSize  int                `db:"vocab_size"`
	Converged  bool               `db:"converged"`
	AUC        float64            `db:"auc"`
	Accuracy   float64            `db:"accuracy"`
	EvalJSON   string             `db:"evaluation"`
	Evaluation smsspam.Evaluation `db:"-"`
}

// String provides a short representation of the model
func (m ModelInfo) String() string {
	return fmt.Sprintf("#%d %s, %s, vocabulary:%d, converged:%v, auc:%.4f, accuracy:%.4f",
		m.ID, m.Timestamp.Format(time.DateTime), m.Vectorizer, m.VocabSize, m.Converged, m.AUC, m.Accuracy)
}

// StoredModel is a restored classifier with its summary
type StoredModel struct {
	ModelInfo
	Classifier *smsspam.Classifier
}

// models-related command constants
const (
	CmdCreateModelsTable engine.DBCmd = iota + 200
	CmdCreateModelsIndexes
	CmdAddModel
)

const modelInfoColumns = `id, timestamp, vectorizer, vocab_size, converged, auc, accuracy, evaluation`

var modelsQueries = engine.NewQueryMap().
	Add(CmdCreateModelsTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS models (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid TEXT NOT NULL DEFAULT '',
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
			vectorizer TEXT NOT NULL,
			vocab_size INTEGER NOT NULL,
			converged BOOLEAN NOT NULL,
			auc REAL NOT NULL DEFAULT 0,
			accuracy REAL NOT NULL DEFAULT 0,
			evaluation TEXT NOT NULL DEFAULT '{}',
			snapshot TEXT NOT NULL
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS models (
			id BIGSERIAL PRIMARY KEY,
			gid TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
			vectorizer TEXT NOT NULL,
			vocab_size INTEGER NOT NULL,
			converged BOOLEAN NOT NULL,
			auc DOUBLE PRECISION NOT NULL DEFAULT 0,
			accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
			evaluation TEXT NOT NULL DEFAULT '{}',
			snapshot TEXT NOT NULL
		)`,
	}).
	AddSame(CmdCreateModelsIndexes, `CREATE INDEX IF NOT EXISTS idx_models_gid_id ON models(gid, id)`).
	AddSame(CmdAddModel, `INSERT INTO models (gid, timestamp, vectorizer, vocab_size, converged, auc, accuracy, evaluation, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)

// NewModels creates a new Models storage
func NewModels(ctx context.Context, db *engine.SQL) (*Models, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}
	res := &Models{SQL: db, RWLocker: db.MakeLock()}
	cfg := engine.TableConfig{
		Name:          "models",
		CreateTable:   CmdCreateModelsTable,
		CreateIndexes: CmdCreateModelsIndexes,
		MigrateFunc:   res.migrate,
		QueriesMap:    modelsQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init models storage: %w", err)
	}
	return res, nil
}

// Save stores the classifier with its evaluation and returns the new model id
func (m *Models) Save(ctx context.Context, clf *smsspam.Classifier, eval smsspam.Evaluation) (int64, error) {
	if clf == nil {
		return 0, fmt.Errorf("classifier is nil")
	}
	snapshot, err := json.Marshal(clf)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal classifier: %w", err)
	}
	evalJSON, err := json.Marshal(eval)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal evaluation: %w", err)
	}

	query, err := modelsQueries.Pick(m.Type(), CmdAddModel)
	if err != nil {
		return 0, fmt.Errorf("failed to get query: %w", err)
	}

	m.Lock()
	defer m.Unlock()

	var id int64
	err = m.QueryRowxContext(ctx, query, m.GID(), time.Now(), string(clf.Params().Vectorizer), clf.Vocabulary().Len(),
		clf.Warning() == nil, eval.AUC, eval.Accuracy, string(evalJSON), string(snapshot)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to add model: %w", err)
	}
	log.Printf("[INFO] model #%d saved, gid=%s, size %d bytes", id, m.GID(), len(snapshot))
	return id, nil
}

// Get returns model by id
func (m *Models) Get(ctx context.Context, id int64) (*StoredModel, error) {
	query := m.Adopt(`SELECT ` + modelInfoColumns + `, snapshot FROM models WHERE gid = ? AND id = ?`)
	return m.load(ctx, query, m.GID(), id)
}

// Latest returns the most recently stored model of the group
func (m *Models) Latest(ctx context.Context) (*StoredModel, error) {
	query := m.Adopt(`SELECT ` + modelInfoColumns + `, snapshot FROM models WHERE gid = ? ORDER BY id DESC LIMIT 1`)
	return m.load(ctx, query, m.GID())
}

// List returns summaries of all models of the group, newest first
func (m *Models) List(ctx context.Context) ([]ModelInfo, error) {
	m.RLock()
	defer m.RUnlock()

	var res []ModelInfo
	query := m.Adopt(`SELECT ` + modelInfoColumns + ` FROM models WHERE gid = ? ORDER BY id DESC`)
	if err := m.SelectContext(ctx, &res, query, m.GID()); err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	for i := range res {
		if err := res[i].decode(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Delete removes model by id
func (m *Models) Delete(ctx context.Context, id int64) error {
	log.Printf("[DEBUG] deleting model: %d", id)
	m.Lock()
	defer m.Unlock()

	result, err := m.ExecContext(ctx, m.Adopt(`DELETE FROM models WHERE gid = ? AND id = ?`), m.GID(), id)
	if err != nil {
		return fmt.Errorf("failed to remove model: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("model %d: %w", id, ErrNotFound)
	}
	return nil
}

func (m *Models) load(ctx context.Context, query string, args ...any) (*StoredModel, error) {
	m.RLock()
	defer m.RUnlock()

	var rec struct {
		ModelInfo
		Snapshot string `db:"snapshot"`
	}
	if err := m.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("model for gid %q: %w", m.GID(), ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	if err := rec.decode(); err != nil {
		return nil, err
	}

	clf, err := smsspam.Unmarshal([]byte(rec.Snapshot))
	if err != nil {
		return nil, fmt.Errorf("failed to restore model #%d: %w", rec.ID, err)
	}
	log.Printf("[DEBUG] model #%d loaded, vocabulary size %d", rec.ID, clf.Vocabulary().Len())
	return &StoredModel{ModelInfo: rec.ModelInfo, Classifier: clf}, nil
}

func (mi *ModelInfo) decode() error {
	if err := json.Unmarshal([]byte(mi.EvalJSON), &mi.Evaluation); err != nil {
		return fmt.Errorf("failed to unmarshal evaluation of model #%d: %w", mi.ID, err)
	}
	mi.Timestamp = mi.Timestamp.Local()
	return nil
}

func (m *Models) migrate(_ context.Context, _ *sqlx.Tx, _ string) error {
	// no migration needed for now
	return nil
}
