package service

import (
	"github.com/ascension-labs/govcore/internal/domain"
	"github.com/ascension-labs/govcore/internal/domain/artifact"
)

// Arbitrate picks the candidate whose index-aligned verdict scores highest
// (+confidence for approve, -confidence for reject). Ties go to the first
// maximal index.
func Arbitrate(candidates []artifact.Candidate, verdicts []artifact.Verdict) (artifact.Candidate, error) {
	i, err := arbitrateIndex(candidates, verdicts)
	if err != nil {
		return artifact.Candidate{}, err
	}
	return candidates[i], nil
}

func arbitrateIndex(candidates []artifact.Candidate, verdicts []artifact.Verdict) (int, error) {
	if len(candidates) == 0 {
		return 0, domain.Validationf("arbitrate: no candidates")
	}
	if len(candidates) != len(verdicts) {
		return 0, domain.Validationf("arbitrate: %d candidates but %d verdicts", len(candidates), len(verdicts))
	}
	best := 0
	for i := 1; i < len(verdicts); i++ {
		if verdicts[i].Score() > verdicts[best].Score() {
			best = i
		}
	}
	return best, nil
}
