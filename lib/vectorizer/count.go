package vectorizer

import (
	"github.com/umputun/sms-spam/lib/sparse"
)

// Count is a bag-of-words vectorizer producing raw token counts
type Count struct {
	counter
	state *fitted
}

// NewCount makes a count vectorizer, zero params replaced by defaults
func NewCount(p Params) (*Count, error) {
	c, err := newCounter(KindCount, p)
	if err != nil {
		return nil, err
	}
	return &Count{counter: c}, nil
}

// Fit builds vocabulary from training documents, previous state replaced
func (c *Count) Fit(docs []string) error {
	st, err := c.fit(docs)
	if err != nil {
		return err
	}
	c.state = st
	return nil
}

// Transform converts documents to rows of raw token counts
func (c *Count) Transform(docs ...string) (sparse.Matrix, error) {
	if c.state == nil {
		return sparse.Matrix{}, ErrNotFitted
	}
	res := sparse.Matrix{Rows: make([]sparse.Vector, len(docs)), Cols: c.state.vocab.Len()}
	for i, doc := range docs {
		res.Rows[i] = sparse.FromMap(c.counts(c.state, doc))
	}
	return res, nil
}

// Vocabulary returns fitted vocabulary
func (c *Count) Vocabulary() Vocabulary {
	if c.state == nil {
		return Vocabulary{}
	}
	return c.state.vocab
}

// Kind returns KindCount
func (c *Count) Kind() Kind { return KindCount }

// Snapshot returns the state for persistence
func (c *Count) Snapshot() Snapshot { return c.snapshot(KindCount, c.state) }
