package similarity

import (
	"errors"
	"math"
	"sort"

	"github.com/bowerhall/kindly/internal/knowledge"
)

// ErrNoTrainingData is returned by Query when the index was built from no pairs.
var ErrNoTrainingData = errors.New("similarity index has no training data")

// Match is the training pair closest to a query.
type Match struct {
	Reply      string
	Text       string
	DialogueID string
	Index      int
	Score      float64
}

type term struct {
	id     int
	weight float64
}

// vector is a sparse, L2-normalized row ordered by vocabulary position. The
// fixed order keeps dot products bit-for-bit reproducible across queries.
type vector []term

// Index is a TF-IDF model fit once over a fixed set of training pairs. It is
// never mutated after Build and is safe for concurrent queries.
type Index struct {
	pairs []knowledge.TrainingPair
	vocab map[string]int
	idf   []float64
	rows  []vector
}

// Build fits the vocabulary and idf weights over the pair utterances and
// vectorizes every pair.
func Build(pairs []knowledge.TrainingPair) *Index {
	idx := &Index{
		pairs: append([]knowledge.TrainingPair(nil), pairs...),
		vocab: make(map[string]int),
	}

	docs := make([][]string, len(pairs))
	var df []int
	for i, p := range pairs {
		docs[i] = Features(p.Utterance)

		seen := make(map[int]bool, len(docs[i]))
		for _, f := range docs[i] {
			id, ok := idx.vocab[f]
			if !ok {
				id = len(idx.vocab)
				idx.vocab[f] = id
				df = append(df, 0)
			}
			if !seen[id] {
				seen[id] = true
				df[id]++
			}
		}
	}

	n := float64(len(pairs))
	idx.idf = make([]float64, len(df))
	for id, count := range df {
		idx.idf[id] = math.Log((1+n)/(1+float64(count))) + 1
	}

	idx.rows = make([]vector, len(docs))
	for i, features := range docs {
		idx.rows[i] = idx.vectorize(features)
	}

	return idx
}

// Len reports the number of training pairs.
func (idx *Index) Len() int {
	return len(idx.pairs)
}

// VocabularySize reports the number of distinct features seen during Build.
func (idx *Index) VocabularySize() int {
	return len(idx.vocab)
}

// Query returns the training pair with the highest cosine similarity to text.
// Ties go to the earliest pair. The score is not thresholded here.
func (idx *Index) Query(text string) (Match, error) {
	if len(idx.pairs) == 0 {
		return Match{}, ErrNoTrainingData
	}

	q := idx.vectorize(Features(text))

	best, bestScore := 0, -1.0
	for i, row := range idx.rows {
		if s := dot(q, row); s > bestScore {
			best, bestScore = i, s
		}
	}

	p := idx.pairs[best]
	return Match{
		Reply:      p.Reply,
		Text:       p.Utterance,
		DialogueID: p.DialogueID,
		Index:      best,
		Score:      clamp(bestScore),
	}, nil
}

// vectorize weights raw feature counts by idf and L2-normalizes the result.
// Features outside the vocabulary are ignored.
func (idx *Index) vectorize(features []string) vector {
	counts := make(map[int]float64, len(features))
	for _, f := range features {
		if id, ok := idx.vocab[f]; ok {
			counts[id]++
		}
	}

	v := make(vector, 0, len(counts))
	for id, tf := range counts {
		v = append(v, term{id: id, weight: tf * idx.idf[id]})
	}
	sort.Slice(v, func(i, j int) bool { return v[i].id < v[j].id })

	var norm float64
	for _, t := range v {
		norm += t.weight * t.weight
	}

	if norm == 0 {
		return v
	}

	norm = math.Sqrt(norm)
	for i := range v {
		v[i].weight /= norm
	}

	return v
}

func dot(a, b vector) float64 {
	var sum float64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i].id < b[j].id:
			i++
		case a[i].id > b[j].id:
			j++
		default:
			sum += a[i].weight * b[j].weight
			i++
			j++
		}
	}
	return sum
}

// clamp absorbs floating point drift so identical vectors score exactly 1.
func clamp(score float64) float64 {
	const epsilon = 1e-9

	switch {
	case score > 1-epsilon:
		return 1
	case score < 0:
		return 0
	default:
		return score
	}
}
