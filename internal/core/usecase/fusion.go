package usecase

import (
	"sort"

	"github.com/okulov/polyqa/internal/core/domain"
)

type fusionParams struct {
	VectorWeight  float64
	KeywordWeight float64
	RRFC          int
}

// fuseHybrid merges the vector and keyword result lists into one
// deduplicated candidate list. Raw scores are min-max normalized
// within their own list; the combined score is weighted
// reciprocal-rank fusion, weight_m / (rank_m + c) per modality, so a
// candidate present in both lists accumulates both terms. Output
// ordering is fully deterministic: fused score descending, then
// shorter chunk text, then chunk id.
func fuseHybrid(vector, keyword []domain.ScoredRef, p fusionParams) []domain.Candidate {
	if p.RRFC <= 0 {
		p.RRFC = 60
	}

	acc := make(map[string]*domain.Candidate, len(vector)+len(keyword))
	key := func(ref domain.ScoredRef) string { return ref.DocumentID + "\x00" + ref.ChunkID }

	merge := func(refs []domain.ScoredRef, modality domain.Modality, weight float64) {
		refs = rankOrder(refs)
		norms := normalizeScores(refs)
		for i, ref := range refs {
			cand, ok := acc[key(ref)]
			if !ok {
				cand = &domain.Candidate{
					ChunkID:    ref.ChunkID,
					DocumentID: ref.DocumentID,
				}
				acc[key(ref)] = cand
			}
			if cand.Text == "" {
				cand.Text = ref.Text
			}
			if cand.Language == "" {
				cand.Language = ref.Language
			}
			cand.Modalities |= modality
			switch modality {
			case domain.ModalityVector:
				cand.VectorScore = norms[i]
			case domain.ModalityKeyword:
				cand.KeywordScore = norms[i]
			}
			cand.FusedScore += weight / float64(i+1+p.RRFC)
		}
	}

	merge(vector, domain.ModalityVector, p.VectorWeight)
	merge(keyword, domain.ModalityKeyword, p.KeywordWeight)

	out := make([]domain.Candidate, 0, len(acc))
	for _, cand := range acc {
		out = append(out, *cand)
	}
	sortCandidates(out, func(c domain.Candidate) float64 { return c.FusedScore })
	return out
}

// rankOrder sorts a modality's hits by raw score descending with a
// chunk-id tiebreak, so ranks are stable even when the backend returns
// equal scores in arbitrary order.
func rankOrder(refs []domain.ScoredRef) []domain.ScoredRef {
	out := make([]domain.ScoredRef, len(refs))
	copy(out, refs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func normalizeScores(refs []domain.ScoredRef) []float64 {
	if len(refs) == 0 {
		return nil
	}
	minScore, maxScore := refs[0].Score, refs[0].Score
	for _, ref := range refs[1:] {
		if ref.Score < minScore {
			minScore = ref.Score
		}
		if ref.Score > maxScore {
			maxScore = ref.Score
		}
	}

	out := make([]float64, len(refs))
	scoreRange := maxScore - minScore
	for i, ref := range refs {
		if scoreRange <= 0 {
			if ref.Score > 0 {
				out[i] = 1
			}
			continue
		}
		out[i] = (ref.Score - minScore) / scoreRange
	}
	return out
}

// sortCandidates orders candidates by the given score descending, ties
// broken by shorter chunk text then lexicographic chunk id.
func sortCandidates(cands []domain.Candidate, score func(domain.Candidate) float64) {
	sort.SliceStable(cands, func(i, j int) bool {
		si, sj := score(cands[i]), score(cands[j])
		if si != sj {
			return si > sj
		}
		if len(cands[i].Text) != len(cands[j].Text) {
			return len(cands[i].Text) < len(cands[j].Text)
		}
		return cands[i].ChunkID < cands[j].ChunkID
	})
}
