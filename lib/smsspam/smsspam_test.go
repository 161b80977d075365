package smsspam

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/sms-spam/lib/dataset"
	"github.com/umputun/sms-spam/lib/logreg"
	"github.com/umputun/sms-spam/lib/vectorizer"
)

var toy = dataset.Dataset{
	{Text: "Hello how are you", Spam: false},
	{Text: "WIN FREE CASH NOW", Spam: true},
	{Text: "See you tomorrow", Spam: false},
	{Text: "FREE FREE prize claim now", Spam: true},
}

// synthetic makes n messages, every fifth one is spam
func synthetic(n int) dataset.Dataset {
	spamWords := []string{"win", "free", "prize", "claim", "cash", "urgent", "txt", "reply", "offer"}
	hamWords := []string{"see", "you", "home", "tonight", "dinner", "later", "love", "going", "work"}
	shared := []string{"call", "now", "today", "please"}
	res := make(dataset.Dataset, n)
	for i := range n {
		spam := i%5 == 0
		words := hamWords
		if spam {
			words = spamWords
		}
		text := fmt.Sprintf("%s %s %s %s msg%d", words[i%len(words)], words[(i/3)%len(words)],
			shared[i%len(shared)], words[(i+4)%len(words)], i)
		res[i] = dataset.Message{Text: text, Spam: spam}
	}
	return res
}

func TestTrain_ToyCorpus(t *testing.T) {
	c, err := Train(toy, Params{})
	require.NoError(t, err)
	assert.NoError(t, c.Warning())
	assert.Equal(t, vectorizer.KindCount, c.Params().Vectorizer)
	assert.Equal(t, 12, c.Vocabulary().Len())

	pred, err := c.Predict("claim your FREE prize now")
	require.NoError(t, err)
	assert.Equal(t, dataset.ClassSpam, pred.Class)
	assert.True(t, pred.Spam())
	assert.Greater(t, pred.Probability, 0.5)
	t.Logf("prediction: %s", pred)

	pred, err = c.Predict("See you tomorrow, how are you?")
	require.NoError(t, err)
	assert.Equal(t, dataset.ClassHam, pred.Class)
}

func TestTrain_UnknownTokensDeterministic(t *testing.T) {
	c, err := Train(toy, Params{})
	require.NoError(t, err)

	x, err := c.features("zebra quantum xylophone")
	require.NoError(t, err)
	assert.True(t, x.Row(0).IsZero())

	first, err := c.Predict("zebra quantum xylophone")
	require.NoError(t, err)
	m := c.Model()
	assert.Equal(t, dataset.ClassOf(m.Probability(x.Row(0)) > logreg.Threshold), first.Class)
	for range 5 {
		next, err := c.Predict("zebra quantum xylophone")
		require.NoError(t, err)
		assert.Equal(t, first, next)
	}
}

func TestClassifier_TopFeatures(t *testing.T) {
	c, err := Train(toy, Params{})
	require.NoError(t, err)

	neg, pos := c.TopFeatures(3)
	tokens := func(ff []Feature) []string {
		res := make([]string, 0, len(ff))
		for _, f := range ff {
			res = append(res, f.Token)
		}
		return res
	}
	assert.Equal(t, []string{"you", "see", "tomorrow"}, tokens(neg))
	assert.Equal(t, []string{"free", "now", "cash"}, tokens(pos))
	assert.Equal(t, neg[1].Weight, neg[2].Weight, "tie resolved by feature index")
	assert.Less(t, neg[1].Index, neg[2].Index)
	for _, f := range neg {
		assert.Negative(t, f.Weight)
	}

	neg, pos = c.TopFeatures(100)
	assert.Len(t, neg, 12)
	assert.Len(t, pos, 12)
	for i := 1; i < len(neg); i++ {
		assert.LessOrEqual(t, neg[i-1].Weight, neg[i].Weight)
		assert.GreaterOrEqual(t, pos[i-1].Weight, pos[i].Weight)
	}

	neg, pos = c.TopFeatures(0)
	assert.Empty(t, neg)
	assert.Empty(t, pos)
}

func TestRunDataset(t *testing.T) {
	for _, kind := range []vectorizer.Kind{vectorizer.KindCount, vectorizer.KindTfidf} {
		t.Run(string(kind), func(t *testing.T) {
			res, err := RunDataset(synthetic(400), Params{Vectorizer: kind, Seed: 7})
			require.NoError(t, err)
			assert.Equal(t, 400, res.Stats.Total)
			assert.Equal(t, 80, res.Stats.Spam)
			assert.Len(t, res.Split.Train, 300)
			assert.Len(t, res.Split.Test, 100)
			assert.Equal(t, 100, res.Evaluation.Samples)
			assert.Equal(t, 100, res.Evaluation.Confusion.Total())
			assert.Greater(t, res.Evaluation.AUC, 0.9)
			assert.Greater(t, res.Evaluation.AUCLabels, 0.5)
			assert.Greater(t, res.Evaluation.Accuracy, 0.8)
			t.Logf("evaluation: %s", res.Evaluation)

			if kind == vectorizer.KindTfidf {
				for _, term := range res.Classifier.Vocabulary().Terms() {
					assert.False(t, strings.HasPrefix(term, "msg"), "unique tokens dropped by min df, got %q", term)
				}
			}
		})
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for _, m := range synthetic(200) {
		fmt.Fprintf(&sb, "%s\t%s\n", m.Class(), m.Text)
	}
	path := filepath.Join(dir, "sms.tsv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))

	res, err := Run(path, Params{Vectorizer: vectorizer.KindTfidf})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Stats.Total)
	assert.Greater(t, res.Evaluation.AUC, 0.9)

	// same seed gives the same split and the same scores
	res2, err := Run(path, Params{Vectorizer: vectorizer.KindTfidf})
	require.NoError(t, err)
	assert.Equal(t, res.Split, res2.Split)
	assert.Equal(t, res.Evaluation, res2.Evaluation)

	bad := filepath.Join(dir, "bad.tsv")
	require.NoError(t, os.WriteFile(bad, []byte("ham\tok\nwhat\tis this\n"), 0o600))
	_, err = Run(bad, Params{})
	assert.ErrorIs(t, err, dataset.ErrDataFormat)

	_, err = Run(filepath.Join(dir, "missing.tsv"), Params{})
	assert.Error(t, err)
}

func TestRun_Errors(t *testing.T) {
	_, err := RunDataset(synthetic(100), Params{Vectorizer: "bag", TrainFraction: 1.5, LogReg: logreg.Params{MaxIter: -1}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), `unknown vectorizer "bag"`)
	assert.Contains(t, err.Error(), "train fraction 1.5 not in (0,1)")
	assert.Contains(t, err.Error(), "max iterations -1 should be positive")

	_, err = RunDataset(toy[:1], Params{})
	assert.ErrorIs(t, err, dataset.ErrInvalidSplit)

	// test subset of the toy corpus has a single message, auc needs both classes
	_, err = RunDataset(toy, Params{})
	assert.Error(t, err)

	_, err = Train(toy, Params{Vectorizer: vectorizer.KindTfidf})
	assert.ErrorIs(t, err, vectorizer.ErrConfig, "min df 3 leaves nothing in the toy corpus")

	_, err = Train(toy[:2:2], Params{Tokens: vectorizer.Params{MinDF: 2}})
	assert.ErrorIs(t, err, vectorizer.ErrConfig)

	_, err = Train(dataset.Dataset{{Text: "free prize", Spam: true}, {Text: "free cash", Spam: true}}, Params{})
	assert.ErrorIs(t, err, logreg.ErrInvalidInput)
}

func TestTrain_Convergence(t *testing.T) {
	p := Params{LogReg: logreg.Params{C: 100, MaxIter: 1, Tolerance: 1e-12}}
	c, err := Train(synthetic(100), p)
	require.NoError(t, err, "non-strict mode keeps best-effort model")
	assert.ErrorIs(t, c.Warning(), logreg.ErrNotConverged)
	assert.False(t, c.Model().Converged)
	_, err = c.Predict("free prize")
	assert.NoError(t, err)

	p.StrictConvergence = true
	_, err = Train(synthetic(100), p)
	assert.ErrorIs(t, err, logreg.ErrNotConverged)
}

func TestSnapshot(t *testing.T) {
	c, err := Train(synthetic(200), Params{Vectorizer: vectorizer.KindTfidf})
	require.NoError(t, err)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.NoError(t, restored.Warning())
	assert.Equal(t, c.Params(), restored.Params())
	assert.Equal(t, c.Vocabulary().Terms(), restored.Vocabulary().Terms())

	msgs := []string{"win free prize now", "see you at home tonight", "nothing known here"}
	want, err := c.PredictAll(msgs...)
	require.NoError(t, err)
	got, err := restored.PredictAll(msgs...)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// weights don't match vocabulary
	snap := c.Snapshot()
	snap.Model.Weights = snap.Model.Weights[:1]
	_, err = Restore(snap)
	assert.ErrorIs(t, err, ErrConfig)

	snap = c.Snapshot()
	snap.Model.Converged = false
	r, err := Restore(snap)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Warning(), logreg.ErrNotConverged)

	_, err = Unmarshal([]byte("{bad json"))
	assert.Error(t, err)
	_, err = Unmarshal([]byte("{}"))
	assert.ErrorIs(t, err, vectorizer.ErrConfig)
}

func TestClassifier_ModelCopy(t *testing.T) {
	c, err := Train(toy, Params{})
	require.NoError(t, err)
	m := c.Model()
	m.Weights[0] = 1000
	assert.NotEqual(t, 1000.0, c.Model().Weights[0])
}
