package agent

import (
	"sort"

	"github.com/strandlabs/loom/pkg/models"
)

// ContextPacker trims a message history so the estimated token total
// fits a budget. Packing is deterministic: the same input always yields
// the same output.
type ContextPacker struct {
	// MaxTokens is the budget for non-system messages plus the system
	// message. Default: 4096
	MaxTokens int

	// CharsPerToken is the estimation divisor. Default: 4
	CharsPerToken int
}

// NewContextPacker creates a packer with defaults applied.
func NewContextPacker(maxTokens, charsPerToken int) *ContextPacker {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	return &ContextPacker{MaxTokens: maxTokens, CharsPerToken: charsPerToken}
}

// EstimateTokens estimates the token cost of one message: content
// length divided by CharsPerToken rounded up, plus 20 per tool call.
func (p *ContextPacker) EstimateTokens(msg *models.Message) int {
	tokens := (len(msg.Content) + p.CharsPerToken - 1) / p.CharsPerToken
	return tokens + 20*len(msg.ToolCalls)
}

type scored struct {
	index  int
	tokens int
	score  float64
	system bool
}

// Pack returns a chronological subsequence of msgs whose token total
// stays within the budget. The system message is always kept, even when
// it alone exceeds the budget; non-system messages are chosen greedily
// by importance score.
func (p *ContextPacker) Pack(msgs []*models.Message) []*models.Message {
	if len(msgs) == 0 {
		return nil
	}

	n := len(msgs)
	entries := make([]scored, n)
	for i, msg := range msgs {
		entries[i] = scored{
			index:  i,
			tokens: p.EstimateTokens(msg),
			system: msg.Role == models.RoleSystem,
			score:  p.score(msg, i, n),
		}
	}

	// System messages are kept unconditionally and do not consume the
	// shared budget ordering; everything else competes by score.
	budget := p.MaxTokens
	keep := make([]bool, n)
	var candidates []scored
	for _, e := range entries {
		if e.system {
			keep[e.index] = true
			budget -= e.tokens
			continue
		}
		candidates = append(candidates, e)
	}

	// Descending score; ties broken by later index first.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].index > candidates[j].index
	})

	for _, c := range candidates {
		if c.tokens <= budget {
			keep[c.index] = true
			budget -= c.tokens
		}
	}

	out := make([]*models.Message, 0, n)
	for i, msg := range msgs {
		if keep[i] {
			out = append(out, msg)
		}
	}
	return out
}

// score computes the importance of a non-system message: role weight
// plus twice the recency fraction.
func (p *ContextPacker) score(msg *models.Message, index, total int) float64 {
	recency := float64(index+1) / float64(total)
	weight := 0.0
	switch msg.Role {
	case models.RoleUser:
		weight = 1.0
	case models.RoleTool:
		weight = 0.9
	case models.RoleAssistant:
		if len(msg.ToolCalls) > 0 {
			weight = 1.1
		} else {
			weight = 0.8
		}
	}
	return weight + 2*recency
}
