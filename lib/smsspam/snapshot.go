package smsspam

import (
	"encoding/json"
	"fmt"

	"github.com/umputun/sms-spam/lib/logreg"
	"github.com/umputun/sms-spam/lib/vectorizer"
)

// Snapshot is a serializable state of a trained classifier
type Snapshot struct {
	Params     Params              `json:"params"`
	Vectorizer vectorizer.Snapshot `json:"vectorizer"`
	Model      logreg.Model        `json:"model"`
}

// Snapshot returns the classifier state for persistence
func (c *Classifier) Snapshot() Snapshot {
	return Snapshot{Params: c.params, Vectorizer: c.vec.Snapshot(), Model: c.Model()}
}

// MarshalJSON encodes the classifier as its snapshot
func (c *Classifier) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// Restore makes a classifier from the snapshot
func Restore(s Snapshot) (*Classifier, error) {
	vec, err := vectorizer.Restore(s.Vectorizer)
	if err != nil {
		return nil, fmt.Errorf("failed to restore vectorizer: %w", err)
	}
	if s.Model.Dim() != vec.Vocabulary().Len() {
		return nil, fmt.Errorf("%w: model has %d weights, vocabulary size %d", ErrConfig, s.Model.Dim(), vec.Vocabulary().Len())
	}
	model := s.Model
	model.Weights = append([]float64(nil), s.Model.Weights...)
	res := &Classifier{params: s.Params.WithDefaults(), vec: vec, model: &model}
	if !model.Converged {
		res.warning = fmt.Errorf("%w after %d iterations, status %s", logreg.ErrNotConverged, model.Iterations, model.Status)
	}
	return res, nil
}

// Unmarshal decodes a classifier from its json snapshot
func Unmarshal(data []byte) (*Classifier, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return Restore(s)
}
