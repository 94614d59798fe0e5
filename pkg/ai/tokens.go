package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const (
	tokenEncoding = "o200k_base"

	// DefaultContextWindow is the context size local runtimes use unless told
	// otherwise.
	DefaultContextWindow = 4096
	// ContextHeadroom is reserved on top of the prompt for the reply.
	ContextHeadroom = 200
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return enc, encErr
}

// CountTokens returns the number of tokens in text.
func CountTokens(text string) (int, error) {
	e, err := encoding()
	if err != nil {
		return 0, err
	}
	return len(e.Encode(text, nil, nil)), nil
}

// ContextWindowFor returns the context size needed to fit texts plus room
// for the reply, or 0 when the default window is large enough. Texts shorter
// than the default window in bytes are never tokenized.
func ContextWindowFor(texts ...string) (int, error) {
	size := 0
	for _, t := range texts {
		size += len(t)
	}
	// A token is at least one byte, so short inputs always fit.
	if size+ContextHeadroom <= DefaultContextWindow {
		return 0, nil
	}

	tokens := ContextHeadroom
	for _, t := range texts {
		n, err := CountTokens(t)
		if err != nil {
			return 0, err
		}
		tokens += n
	}
	if tokens <= DefaultContextWindow {
		return 0, nil
	}
	return tokens, nil
}
