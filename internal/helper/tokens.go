package helper

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// TokenCounter returns the number of model tokens in s.
type TokenCounter func(s string) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens is the offline fallback: roughly four runes per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// NewTokenCounter uses the cl100k encoding when it can be loaded and falls back to
// EstimateTokens otherwise. The encoding is fetched once per process.
func NewTokenCounter(enabled bool) TokenCounter {
	if !enabled {
		return EstimateTokens
	}
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken unavailable, estimating tokens")
			return
		}
		enc = e
	})
	if enc == nil {
		return EstimateTokens
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}
