package storage

import (
	"context"
	"fmt"

	"github.com/umputun/sms-spam/lib/logreg"
	"github.com/umputun/sms-spam/lib/smsspam"
)

func (s *StorageTestSuite) trainModel(p smsspam.Params) (*smsspam.Classifier, smsspam.Evaluation) {
	clf, err := smsspam.Train(testMessages, p)
	s.Require().NoError(err)
	eval, err := clf.Evaluate(testMessages)
	s.Require().NoError(err)
	return clf, eval
}

func (s *StorageTestSuite) TestModels_SaveAndGet() {
	ctx := context.Background()
	for _, dbt := range s.getTestDB() {
		db := dbt.DB
		s.Run(fmt.Sprintf("with %s", db.Type()), func() {
			defer db.Exec("DROP TABLE models")
			models, err := NewModels(ctx, db)
			s.Require().NoError(err)

			_, err = models.Latest(ctx)
			s.ErrorIs(err, ErrNotFound)

			clf, eval := s.trainModel(smsspam.Params{})
			id, err := models.Save(ctx, clf, eval)
			s.Require().NoError(err)
			s.Positive(id)

			res, err := models.Get(ctx, id)
			s.Require().NoError(err)
			s.Equal(id, res.ID)
			s.Equal("count", res.Vectorizer)
			s.Equal(clf.Vocabulary().Len(), res.VocabSize)
			s.True(res.Converged)
			s.InDelta(eval.AUC, res.AUC, 1e-12)
			s.Equal(eval, res.Evaluation)
			s.False(res.Timestamp.IsZero())

			msgs := []string{"claim your FREE prize now", "see you", "unknown words only"}
			want, err := clf.PredictAll(msgs...)
			s.Require().NoError(err)
			got, err := res.Classifier.PredictAll(msgs...)
			s.Require().NoError(err)
			s.Equal(want, got)

			_, err = models.Get(ctx, id+100)
			s.ErrorIs(err, ErrNotFound)

			_, err = models.Save(ctx, nil, eval)
			s.EqualError(err, "classifier is nil")
		})
	}
}

func (s *StorageTestSuite) TestModels_LatestListDelete() {
	ctx := context.Background()
	for _, dbt := range s.getTestDB() {
		db := dbt.DB
		s.Run(fmt.Sprintf("with %s", db.Type()), func() {
			defer db.Exec("DROP TABLE models")
			models, err := NewModels(ctx, db)
			s.Require().NoError(err)

			clf1, eval1 := s.trainModel(smsspam.Params{})
			id1, err := models.Save(ctx, clf1, eval1)
			s.Require().NoError(err)

			// best-effort model from a solver stopped early
			clf2, eval2 := s.trainModel(smsspam.Params{LogReg: logreg.Params{C: 100, MaxIter: 1, Tolerance: 1e-12}})
			s.Require().Error(clf2.Warning())
			id2, err := models.Save(ctx, clf2, eval2)
			s.Require().NoError(err)
			s.Greater(id2, id1)

			latest, err := models.Latest(ctx)
			s.Require().NoError(err)
			s.Equal(id2, latest.ID)
			s.False(latest.Converged)
			s.ErrorIs(latest.Classifier.Warning(), logreg.ErrNotConverged)

			list, err := models.List(ctx)
			s.Require().NoError(err)
			s.Require().Len(list, 2)
			s.Equal(id2, list[0].ID)
			s.Equal(id1, list[1].ID)
			s.Equal(eval1, list[1].Evaluation)
			s.Contains(list[1].String(), fmt.Sprintf("#%d", id1))
			s.Contains(list[1].String(), "converged:true")

			s.Require().NoError(models.Delete(ctx, id2))
			s.ErrorIs(models.Delete(ctx, id2), ErrNotFound)
			latest, err = models.Latest(ctx)
			s.Require().NoError(err)
			s.Equal(id1, latest.ID)
		})
	}
}
