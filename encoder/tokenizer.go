package encoder

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"strings"
	"unicode"
)

// CLIP text encoder constants: fixed context length plus the start/end
// token ids of the standard CLIP BPE vocabulary.
const (
	contextLength = 77
	startToken    = 49406
	endToken      = 49407
	vocabSize     = 49408
)

// Tokenizer converts query text into the token ids the text encoder
// consumes. When a vocabulary file is configured it uses greedy
// longest-match lookup; without one it falls back to hashing tokens
// into the vocabulary range, which stays deterministic per input.
type Tokenizer struct {
	vocab map[string]int64
}

// NewTokenizer creates a tokenizer, loading the vocabulary from
// vocabPath when it is non-empty
func NewTokenizer(vocabPath string) (*Tokenizer, error) {
	t := &Tokenizer{}

	if vocabPath != "" {
		data, err := os.ReadFile(vocabPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read vocabulary: %w", err)
		}
		if err := json.Unmarshal(data, &t.vocab); err != nil {
			return nil, fmt.Errorf("failed to parse vocabulary: %w", err)
		}
	}

	return t, nil
}

// Tokenize converts text into a fixed-length id sequence with start/end
// markers and zero padding
func (t *Tokenizer) Tokenize(text string) []int64 {
	words := splitWords(strings.ToLower(text))

	ids := make([]int64, 0, contextLength)
	ids = append(ids, startToken)
	for _, w := range words {
		if len(ids) >= contextLength-1 {
			break
		}
		ids = append(ids, t.lookup(w))
	}
	ids = append(ids, endToken)

	for len(ids) < contextLength {
		ids = append(ids, 0)
	}
	return ids
}

func (t *Tokenizer) lookup(word string) int64 {
	if t.vocab != nil {
		if id, ok := t.vocab[word+"</w>"]; ok {
			return id
		}
		if id, ok := t.vocab[word]; ok {
			return id
		}
	}

	// Deterministic fallback into the non-special id range.
	h := fnv.New32a()
	h.Write([]byte(word))
	return int64(h.Sum32() % (startToken - 1))
}

func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
