// Package vectorizer converts raw messages to sparse numeric feature vectors.
//
// Two strategies are supported, both implementing Vectorizer:
//
//   - Count: raw occurrence counts of every token seen in the training documents.
//   - TF-IDF: counts weighted by smoothed inverse document frequency, idf = ln((1+N)/(1+df)) + 1,
//     with every row L2-normalized. Tokens found in fewer than MinDF training documents are dropped.
//
// Vocabulary and document frequencies are captured by Fit and never change after that,
// so Transform is safe for concurrent use once the vectorizer is fitted.
package vectorizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/sms-spam/lib/sparse"
)

// ErrConfig is returned for parameters producing an empty or degenerate vocabulary
var ErrConfig = errors.New("vectorizer configuration error")

// ErrNotFitted is returned by Transform called before Fit
var ErrNotFitted = errors.New("vectorizer is not fitted")

// Kind is a vectorization strategy
type Kind string

// enum of supported strategies
const (
	KindCount Kind = "count"
	KindTfidf Kind = "tfidf"
)

// default parameters
const (
	DefaultMinTokenLen = 2
	DefaultTfidfMinDF  = 3
)

// Vectorizer learns a vocabulary from training documents and turns documents into feature rows
type Vectorizer interface {
	Fit(docs []string) error                         // build vocabulary and statistics from training documents
	Transform(docs ...string) (sparse.Matrix, error) // convert documents to feature rows
	Vocabulary() Vocabulary                          // fitted vocabulary, empty before Fit
	Kind() Kind                                      // strategy of the vectorizer
	Snapshot() Snapshot                              // fitted state for persistence
}

// Params define tokenization and vocabulary pruning
type Params struct {
	MinTokenLen int      `json:"min_token_len"` // minimal token length in runes, default 2
	MinDF       int      `json:"min_df"`        // minimal number of training documents containing a token, default 1 for count, 3 for tf-idf
	NgramMin    int      `json:"ngram_min"`     // lower bound of word n-gram range, default 1
	NgramMax    int      `json:"ngram_max"`     // upper bound of word n-gram range, default 1
	StopWords   []string `json:"stop_words,omitempty"`
}

// Validate checks params after defaults applied
func (p Params) Validate() error {
	errs := new(multierror.Error)
	if p.MinTokenLen < 1 {
		errs = multierror.Append(errs, fmt.Errorf("min token length %d should be positive", p.MinTokenLen))
	}
	if p.MinDF < 1 {
		errs = multierror.Append(errs, fmt.Errorf("min document frequency %d should be positive", p.MinDF))
	}
	if p.NgramMin < 1 || p.NgramMax < p.NgramMin {
		errs = multierror.Append(errs, fmt.Errorf("invalid n-gram range %d..%d", p.NgramMin, p.NgramMax))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

func (p Params) withDefaults(kind Kind) Params {
	res := p
	if res.MinTokenLen == 0 {
		res.MinTokenLen = DefaultMinTokenLen
	}
	if res.MinDF == 0 {
		res.MinDF = 1
		if kind == KindTfidf {
			res.MinDF = DefaultTfidfMinDF
		}
	}
	if res.NgramMin == 0 {
		res.NgramMin = 1
	}
	if res.NgramMax == 0 {
		res.NgramMax = res.NgramMin
	}
	return res
}

// New makes an unfitted vectorizer for the given strategy, zero params replaced by defaults
func New(kind Kind, p Params) (Vectorizer, error) {
	switch kind {
	case KindCount:
		return NewCount(p)
	case KindTfidf:
		return NewTfidf(p)
	default:
		return nil, fmt.Errorf("%w: unknown vectorizer %q", ErrConfig, kind)
	}
}

// Vocabulary maps tokens to feature indices. Indices follow lexicographic order of tokens.
type Vocabulary struct {
	terms []string
	index map[string]int
}

func newVocabulary(terms []string) Vocabulary {
	res := Vocabulary{terms: terms, index: make(map[string]int, len(terms))}
	for i, t := range terms {
		res.index[t] = i
	}
	return res
}

// Len returns vocabulary size
func (v Vocabulary) Len() int { return len(v.terms) }

// Index returns feature index of the token
func (v Vocabulary) Index(token string) (int, bool) {
	idx, ok := v.index[token]
	return idx, ok
}

// Term returns token for the feature index
func (v Vocabulary) Term(idx int) string { return v.terms[idx] }

// Terms returns a copy of all tokens ordered by feature index
func (v Vocabulary) Terms() []string { return append([]string(nil), v.terms...) }

// Longest returns the longest token (in runes), the first one by index wins a tie
func (v Vocabulary) Longest() string {
	res, maxLen := "", 0
	for _, t := range v.terms {
		if l := utf8.RuneCountInString(t); l > maxLen {
			res, maxLen = t, l
		}
	}
	return res
}

// Snapshot is a serializable state of a fitted vectorizer
type Snapshot struct {
	Kind    Kind     `json:"kind"`
	Params  Params   `json:"params"`
	Terms   []string `json:"terms"`
	DocFreq []int    `json:"doc_freq"`
	NumDocs int      `json:"num_docs"`
}

// Restore makes a fitted vectorizer from the snapshot
func Restore(s Snapshot) (Vectorizer, error) {
	if len(s.Terms) == 0 || len(s.Terms) != len(s.DocFreq) || s.NumDocs <= 0 {
		return nil, fmt.Errorf("%w: inconsistent snapshot, terms:%d, doc-freq:%d, docs:%d",
			ErrConfig, len(s.Terms), len(s.DocFreq), s.NumDocs)
	}
	if !sort.StringsAreSorted(s.Terms) {
		return nil, fmt.Errorf("%w: snapshot terms are not sorted", ErrConfig)
	}
	v, err := New(s.Kind, s.Params)
	if err != nil {
		return nil, err
	}
	st := fitted{
		vocab:   newVocabulary(append([]string(nil), s.Terms...)),
		docFreq: append([]int(nil), s.DocFreq...),
		numDocs: s.NumDocs,
	}
	switch vv := v.(type) {
	case *Count:
		vv.state = &st
	case *Tfidf:
		vv.setState(&st)
	}
	return v, nil
}

// fitted is a frozen result of Fit shared by both strategies
type fitted struct {
	vocab   Vocabulary
	docFreq []int
	numDocs int
}

// counter does tokenization and vocabulary building for all strategies
type counter struct {
	params    Params
	tokenizer tokenizer
}

func newCounter(kind Kind, p Params) (counter, error) {
	p = p.withDefaults(kind)
	if err := p.Validate(); err != nil {
		return counter{}, err
	}
	return counter{params: p, tokenizer: newTokenizer(p)}, nil
}

// fit counts document frequencies, drops rare tokens and assigns indices in lexicographic order
func (c counter) fit(docs []string) (*fitted, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no training documents", ErrConfig)
	}
	if c.params.MinDF > len(docs) {
		return nil, fmt.Errorf("%w: min document frequency %d exceeds number of training documents %d",
			ErrConfig, c.params.MinDF, len(docs))
	}

	df := map[string]int{}
	for _, doc := range docs {
		seen := map[string]struct{}{}
		for _, tok := range c.tokenizer.tokens(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for tok, n := range df {
		if n >= c.params.MinDF {
			terms = append(terms, tok)
		}
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: empty vocabulary, %d tokens total, min document frequency %d",
			ErrConfig, len(df), c.params.MinDF)
	}
	sort.Strings(terms)

	res := &fitted{vocab: newVocabulary(terms), docFreq: make([]int, len(terms)), numDocs: len(docs)}
	for i, t := range terms {
		res.docFreq[i] = df[t]
	}
	return res, nil
}

// counts returns raw in-vocabulary token counts, out-of-vocabulary tokens ignored
func (c counter) counts(st *fitted, doc string) map[int]float64 {
	res := map[int]float64{}
	for _, tok := range c.tokenizer.tokens(doc) {
		if idx, ok := st.vocab.Index(tok); ok {
			res[idx]++
		}
	}
	return res
}

func (c counter) snapshot(kind Kind, st *fitted) Snapshot {
	if st == nil {
		return Snapshot{Kind: kind, Params: c.params}
	}
	return Snapshot{
		Kind:    kind,
		Params:  c.params,
		Terms:   st.vocab.Terms(),
		DocFreq: append([]int(nil), st.docFreq...),
		NumDocs: st.numDocs,
	}
}

// smoothIDF returns ln((1+n)/(1+df)) + 1
func smoothIDF(numDocs, df int) float64 {
	return math.Log(float64(1+numDocs)/float64(1+df)) + 1
}
