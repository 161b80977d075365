package vectorizer

import (
	"github.com/umputun/sms-spam/lib/sparse"
)

// Tfidf is a vectorizer producing L2-normalized tf-idf weights.
// Tokens present in fewer than MinDF training documents are not part of the vocabulary.
type Tfidf struct {
	counter
	state *fitted
	idf   []float64
}

// NewTfidf makes a tf-idf vectorizer, zero params replaced by defaults (MinDF defaults to 3)
func NewTfidf(p Params) (*Tfidf, error) {
	c, err := newCounter(KindTfidf, p)
	if err != nil {
		return nil, err
	}
	return &Tfidf{counter: c}, nil
}

// Fit builds vocabulary and idf weights from training documents, previous state replaced
func (t *Tfidf) Fit(docs []string) error {
	st, err := t.fit(docs)
	if err != nil {
		return err
	}
	t.setState(st)
	return nil
}

func (t *Tfidf) setState(st *fitted) {
	idf := make([]float64, len(st.docFreq))
	for i, df := range st.docFreq {
		idf[i] = smoothIDF(st.numDocs, df)
	}
	t.state, t.idf = st, idf
}

// Transform converts documents to L2-normalized tf-idf rows. Rows without known tokens stay zero.
func (t *Tfidf) Transform(docs ...string) (sparse.Matrix, error) {
	if t.state == nil {
		return sparse.Matrix{}, ErrNotFitted
	}
	res := sparse.Matrix{Rows: make([]sparse.Vector, len(docs)), Cols: t.state.vocab.Len()}
	for i, doc := range docs {
		counts := t.counts(t.state, doc)
		for idx, n := range counts {
			counts[idx] = n * t.idf[idx]
		}
		res.Rows[i] = sparse.FromMap(counts).Normalized()
	}
	return res, nil
}

// IDF returns inverse document frequency of the feature
func (t *Tfidf) IDF(idx int) float64 { return t.idf[idx] }

// Vocabulary returns fitted vocabulary
func (t *Tfidf) Vocabulary() Vocabulary {
	if t.state == nil {
		return Vocabulary{}
	}
	return t.state.vocab
}

// Kind returns KindTfidf
func (t *Tfidf) Kind() Kind { return KindTfidf }

// Snapshot returns the state for persistence
func (t *Tfidf) Snapshot() Snapshot { return t.snapshot(KindTfidf, t.state) }
