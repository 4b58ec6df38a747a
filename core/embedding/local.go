package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/viterin/vek/vek32"
)

// LocalEmbedder hashes character n-grams, identifier tokens and a simhash of
// the text into a fixed-width unit vector. It needs no model or network and
// is deterministic across runs.
type LocalEmbedder struct {
	dimension int
}

func NewLocalEmbedder(dimension int) *LocalEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &LocalEmbedder{dimension: dimension}
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		results[i] = e.embed(text)
	}
	return results, nil
}

func (e *LocalEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	if strings.TrimSpace(text) == "" {
		return vec
	}

	e.addNgramFeatures(vec, ngrams(text, 3), 0.4*0.6)
	e.addNgramFeatures(vec, ngrams(text, 2), 0.4*0.4)
	e.addTokenFeatures(vec, tokenize(text), 0.35)
	e.addSimhashFeatures(vec, text, 0.25)

	normalize(vec)
	return vec
}

func (e *LocalEmbedder) addNgramFeatures(vec []float32, grams []string, weight float64) {
	if len(grams) == 0 {
		return
	}

	w := float32(weight / math.Sqrt(float64(len(grams))))
	for _, g := range grams {
		hash := fnvHash64(g)
		signs := hashSigns(hash, 4)
		for i, idx := range multiHash(hash, e.dimension, 4) {
			vec[idx] += w * signs[i]
		}
	}
}

func (e *LocalEmbedder) addTokenFeatures(vec []float32, tokens []string, weight float64) {
	if len(tokens) == 0 {
		return
	}

	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}

	var norm float64
	for _, count := range tf {
		norm += float64(count * count)
	}
	norm = math.Sqrt(norm)

	for tok, count := range tf {
		hash := fnvHash64(tok)
		signs := hashSigns(hash, 8)
		w := float32(weight * float64(count) / norm)
		for i, idx := range multiHash(hash, e.dimension, 8) {
			vec[idx] += w * signs[i]
		}
	}
}

func (e *LocalEmbedder) addSimhashFeatures(vec []float32, text string, weight float64) {
	simhash := computeSimhash(text)

	w := float32(weight / 8)
	for i := range 64 {
		val := float32(-1)
		if (simhash>>i)&1 == 1 {
			val = 1
		}

		start := (i * e.dimension) / 64
		for j := range 16 {
			vec[(start+j)%e.dimension] += w * val
		}
	}
}

func computeSimhash(text string) uint64 {
	var weights [64]int
	for _, sh := range ngrams(text, 3) {
		hash := fnvHash64(sh)
		for i := range 64 {
			if (hash>>i)&1 == 1 {
				weights[i]++
			} else {
				weights[i]--
			}
		}
	}

	var result uint64
	for i, w := range weights {
		if w > 0 {
			result |= 1 << i
		}
	}
	return result
}

// tokenize splits on non-identifier runes and then on camelCase boundaries,
// so parseConfig and parse_config share the tokens parse and config.
func tokenize(text string) []string {
	var tokens []string
	var current []rune

	flush := func() {
		if len(current) >= 2 {
			tokens = append(tokens, strings.ToLower(string(current)))
		}
		current = current[:0]
	}

	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			current = append(current, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return tokens
}

func ngrams(text string, n int) []string {
	text = strings.ToLower(text)
	if len(text) < n {
		return nil
	}

	grams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		grams = append(grams, text[i:i+n])
	}
	return grams
}

func fnvHash64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

func multiHash(seed uint64, dim int, count int) []int {
	indices := make([]int, count)
	state := seed
	for i := range count {
		state = state*6364136223846793005 + 1442695040888963407
		indices[i] = int(state % uint64(dim))
	}
	return indices
}

func hashSigns(seed uint64, count int) []float32 {
	signs := make([]float32, count)
	for i := range count {
		if (seed>>i)&1 == 1 {
			signs[i] = 1
		} else {
			signs[i] = -1
		}
	}
	return signs
}

func normalize(vec []float32) {
	mag := vek32.Norm(vec)
	if mag == 0 {
		return
	}
	vek32.MulNumber_Inplace(vec, 1/mag)
}
