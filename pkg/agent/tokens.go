package agent

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEstimator gives the UI an approximate "tokens until compaction"
// hint (SPEC_FULL §3). It is never used for the authoritative context-size
// check, which only trusts provider-reported Usage.
type tokenEstimator struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

var estimatorOnce sync.Once
var estimator *tokenEstimator

func getEstimator() *tokenEstimator {
	estimatorOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			estimator = &tokenEstimator{}
			return
		}
		estimator = &tokenEstimator{enc: enc}
	})
	return estimator
}

// EstimateTokens approximates the token count of text, falling back to a
// char/4 heuristic if the cl100k_base encoder failed to load.
func EstimateTokens(text string) int {
	e := getEstimator()
	if e.enc == nil {
		return len(text) / 4
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.enc.Encode(text, nil, nil))
}
