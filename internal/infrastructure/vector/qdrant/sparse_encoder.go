package qdrant

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// sparseVector is the qdrant wire shape for a BM25-style sparse
// embedding: term hash indices with their saturated weights, indices
// sorted ascending.
type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

const (
	bm25Saturation = 1.2
	filenameBoost  = 1.5
	maxSparseTerms = 256
)

// termCounts accumulates weighted term frequencies keyed by token
// hash.
type termCounts map[uint32]float64

func (tc termCounts) add(text string, weight float64) {
	for _, token := range tokenizeWords(text) {
		tc[hashToken(token)] += weight
	}
}

// vector converts the accumulated frequencies into a sparse vector.
// Weights follow the BM25 term saturation curve tf*(k+1)/(tf+k), so
// repeated terms gain diminishing weight instead of growing linearly.
func (tc termCounts) vector() sparseVector {
	if len(tc) == 0 {
		return sparseVector{}
	}

	indices := make([]uint32, 0, len(tc))
	for idx := range tc {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, len(indices))
	for i, idx := range indices {
		tf := tc[idx]
		w := tf * (bm25Saturation + 1.0) / (tf + bm25Saturation)
		if math.IsNaN(w) || math.IsInf(w, 0) {
			w = 0
		}
		values[i] = float32(w)
	}
	return sparseVector{Indices: indices, Values: values}
}

// encodeSparseDocument builds the sparse embedding for a chunk at
// index time. Filename tokens are mixed in with a boost so a query
// naming the document outranks chunks that merely mention its terms.
func encodeSparseDocument(text string, filename string) sparseVector {
	tc := make(termCounts, 64)
	tc.add(text, 1.0)
	tc.add(filename, filenameBoost)
	return tc.vector()
}

func encodeSparseQuery(query string) sparseVector {
	tc := make(termCounts, 32)
	tc.add(query, 1.0)
	return tc.vector()
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}

// tokenizeWords lowercases and splits on anything that is not a letter
// or a digit. The corpus is multilingual, so the full Unicode letter
// categories count, not just ASCII.
func tokenizeWords(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
