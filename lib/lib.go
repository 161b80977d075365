// Package lib provides functionality for short text message (SMS) spam classification with
// logistic regression. The library is split into small packages:
//
//   - dataset: loads labeled messages from a tab-separated file ("ham|spam<TAB>text" per line)
//     and splits them into train and test subsets with a seeded shuffle.
//
//   - vectorizer: turns messages into sparse feature vectors. Two strategies are supported, raw
//     token counts and tf-idf weights with L2 normalized rows. Vocabulary is fitted on the train
//     subset only, unknown tokens are ignored by Transform.
//
//   - logreg: L2 regularized binary logistic regression fitted with L-BFGS.
//
//   - metrics: ROC AUC and confusion matrix based scores.
//
//   - smsspam: the pipeline tying all the above together. smsspam.Run loads, splits, trains and
//     evaluates; smsspam.Train and Classifier.Predict can be used directly. A trained Classifier
//     is immutable, safe for concurrent use and can be persisted with Classifier.Snapshot and
//     restored with smsspam.Restore.
//
// Params.StrictConvergence controls what happens when the solver stops before convergence. By default
// the best-effort model is used and the problem is available via Classifier.Warning.
package lib
