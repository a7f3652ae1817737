package explorer

import "github.com/pkoukk/tiktoken-go"

// historyTrimmer bounds the rendered step history sent to the model to a
// token budget, dropping the oldest entries first. The page observation and
// task prompt are sent in full; only the step history is trimmed.
type historyTrimmer struct {
	enc    *tiktoken.Tiktoken
	budget int
}

func newHistoryTrimmer(model string, budget int) *historyTrimmer {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Unknown model names fall back to the common encoding.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	return &historyTrimmer{enc: enc, budget: budget}
}

// Trim returns the longest suffix of entries that fits in the budget. Entries
// are never truncated mid-string; an oversized single entry is kept alone so
// the model always sees the most recent step.
func (t *historyTrimmer) Trim(entries []string) []string {
	if t.budget <= 0 || len(entries) == 0 {
		return entries
	}

	total := 0
	cut := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		total += t.count(entries[i])
		if total > t.budget {
			break
		}
		cut = i
	}
	if cut == len(entries) {
		// Even the newest entry exceeds the budget; keep it anyway.
		cut = len(entries) - 1
	}
	return entries[cut:]
}

func (t *historyTrimmer) count(s string) int {
	if t.enc == nil {
		// Rough fallback: 4 characters per token.
		return len(s) / 4
	}
	return len(t.enc.Encode(s, nil, nil))
}
