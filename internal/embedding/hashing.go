package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"book-reader/internal/helper"
	"book-reader/internal/models"
)

const DefaultDimension = 384

// HashingEmbedder is a deterministic bag-of-words embedder. Word unigrams and
// bigrams are hashed into a fixed number of signed buckets and the vector is
// L2 normalized, so cosine similarity reflects shared vocabulary.
type HashingEmbedder struct {
	Dimension int
}

func NewHashingEmbedder(dimension int) *HashingEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashingEmbedder{Dimension: dimension}
}

func (h *HashingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := h.embed(text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		vectors = append(vectors, v)
	}
	return vectors, nil
}

func (h *HashingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text)
}

func (h *HashingEmbedder) embed(text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", models.ErrEmbedding)
	}

	vec := make([]float64, h.Dimension)
	features := append(featuresOf(text), surfaceFeatures(text)...)
	for _, f := range features {
		sum := xxhash.Sum64String(f.key)
		idx := sum % uint64(h.Dimension)
		if sum>>63 == 1 {
			vec[idx] -= f.weight
		} else {
			vec[idx] += f.weight
		}
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	out := make([]float32, h.Dimension)
	if norm == 0 {
		// colliding features cancelled out
		out[xxhash.Sum64String(features[0].key)%uint64(h.Dimension)] = 1
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, x := range vec {
		out[i] = float32(x / norm)
	}
	return out, nil
}

type feature struct {
	key    string
	weight float64
}

// featuresOf prefers content words, then any words, then character trigrams,
// so every non-blank text produces at least one feature.
func featuresOf(text string) []feature {
	tokens := helper.ContentTokens(text)
	if len(tokens) == 0 {
		tokens = helper.Tokenize(text)
	}
	if len(tokens) == 0 {
		return trigrams(text)
	}

	features := make([]feature, 0, 2*len(tokens))
	for i, tok := range tokens {
		features = append(features, feature{key: "w:" + tok, weight: 1})
		if i > 0 {
			features = append(features, feature{key: "b:" + tokens[i-1] + " " + tok, weight: 0.5})
		}
	}
	return features
}

// surfaceFeatures keep the raw words and the whole text, so texts that only
// differ in stopwords, case or punctuation still get distinct vectors.
func surfaceFeatures(text string) []feature {
	fields := strings.Fields(text)
	features := make([]feature, 0, len(fields)+1)
	for _, f := range fields {
		features = append(features, feature{key: "r:" + f, weight: 0.25})
	}
	return append(features, feature{key: "t:" + strings.Join(fields, " "), weight: 0.5})
}

func trigrams(text string) []feature {
	var runes []rune
	for _, r := range strings.ToLower(text) {
		if !unicode.IsSpace(r) {
			runes = append(runes, r)
		}
	}
	if len(runes) < 3 {
		return []feature{{key: "c:" + string(runes), weight: 1}}
	}
	features := make([]feature, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		features = append(features, feature{key: "c:" + string(runes[i:i+3]), weight: 1})
	}
	return features
}
