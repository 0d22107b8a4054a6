package llm

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// EstimateTokens counts the tokens of text under the cl100k encoding. The
// exact model encoding varies, but cl100k is close enough for budgeting
// prompt context.
func EstimateTokens(text string) (int, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return 0, fmt.Errorf("failed to get tokenizer encoding: %w", codecErr)
	}

	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("failed to encode text: %w", err)
	}
	return len(ids), nil
}

// TruncateToTokens trims text so it encodes to at most maxTokens tokens.
func TruncateToTokens(text string, maxTokens int) (string, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return "", fmt.Errorf("failed to get tokenizer encoding: %w", codecErr)
	}

	ids, _, err := codec.Encode(text)
	if err != nil {
		return "", fmt.Errorf("failed to encode text: %w", err)
	}
	if len(ids) <= maxTokens {
		return text, nil
	}

	return codec.Decode(ids[:maxTokens])
}
