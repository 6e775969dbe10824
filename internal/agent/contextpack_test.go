package agent

import (
	"strings"
	"testing"

	"github.com/strandlabs/loom/pkg/models"
)

func TestEstimateTokens(t *testing.T) {
	p := NewContextPacker(0, 0)

	tests := []struct {
		name string
		msg  *models.Message
		want int
	}{
		{"empty", &models.Message{}, 0},
		{"exact multiple", &models.Message{Content: strings.Repeat("a", 8)}, 2},
		{"rounds up", &models.Message{Content: strings.Repeat("a", 9)}, 3},
		{"tool call overhead", &models.Message{
			Content:   strings.Repeat("a", 4),
			ToolCalls: []models.ToolCall{{ID: "t1"}, {ID: "t2"}},
		}, 41},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.EstimateTokens(tt.msg); got != tt.want {
				t.Errorf("EstimateTokens() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPackKeepsSystemAndRecentMessages(t *testing.T) {
	p := NewContextPacker(120, 4)

	msgs := []*models.Message{
		{Role: models.RoleSystem, Content: strings.Repeat("s", 40)},
	}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, &models.Message{
			ID:      string(rune('a' + i)),
			Role:    models.RoleUser,
			Content: strings.Repeat("u", 80),
		})
	}

	packed := p.Pack(msgs)

	// 120 token budget minus 10 for the system message leaves room for
	// exactly five 20-token user messages; recency picks the last five.
	if len(packed) != 6 {
		t.Fatalf("packed %d messages, want 6", len(packed))
	}
	if packed[0].Role != models.RoleSystem {
		t.Fatalf("first packed message role = %s, want system", packed[0].Role)
	}
	for i, want := range []string{"f", "g", "h", "i", "j"} {
		if packed[i+1].ID != want {
			t.Errorf("packed[%d].ID = %s, want %s", i+1, packed[i+1].ID, want)
		}
	}

	total := 0
	for _, m := range packed {
		total += p.EstimateTokens(m)
	}
	if total > 120 {
		t.Errorf("packed total %d tokens exceeds budget", total)
	}
}

func TestPackPreservesChronologicalOrder(t *testing.T) {
	p := NewContextPacker(1000, 4)
	msgs := []*models.Message{
		{ID: "1", Role: models.RoleUser, Content: "first"},
		{ID: "2", Role: models.RoleAssistant, Content: "second"},
		{ID: "3", Role: models.RoleUser, Content: "third"},
	}
	packed := p.Pack(msgs)
	if len(packed) != 3 {
		t.Fatalf("packed %d messages, want 3", len(packed))
	}
	for i, m := range packed {
		if m.ID != msgs[i].ID {
			t.Errorf("packed[%d].ID = %s, want %s", i, m.ID, msgs[i].ID)
		}
	}
}

func TestPackOversizedSystemStillKept(t *testing.T) {
	p := NewContextPacker(10, 4)
	msgs := []*models.Message{
		{Role: models.RoleSystem, Content: strings.Repeat("s", 400)},
		{Role: models.RoleUser, Content: strings.Repeat("u", 400)},
	}
	packed := p.Pack(msgs)
	if len(packed) != 1 || packed[0].Role != models.RoleSystem {
		t.Fatalf("expected only the system message, got %d messages", len(packed))
	}
}

func TestPackSkipsOversizedButKeepsSmaller(t *testing.T) {
	p := NewContextPacker(30, 4)
	msgs := []*models.Message{
		{ID: "big", Role: models.RoleUser, Content: strings.Repeat("x", 400)},
		{ID: "small", Role: models.RoleUser, Content: strings.Repeat("x", 40)},
	}
	packed := p.Pack(msgs)
	if len(packed) != 1 || packed[0].ID != "small" {
		t.Fatalf("expected the smaller message to survive, got %v", ids(packed))
	}
}

func TestPackDeterministic(t *testing.T) {
	p := NewContextPacker(100, 4)
	msgs := []*models.Message{
		{ID: "1", Role: models.RoleUser, Content: strings.Repeat("a", 100)},
		{ID: "2", Role: models.RoleAssistant, Content: strings.Repeat("b", 100)},
		{ID: "3", Role: models.RoleTool, Content: strings.Repeat("c", 100)},
		{ID: "4", Role: models.RoleUser, Content: strings.Repeat("d", 100)},
	}
	first := ids(p.Pack(msgs))
	for i := 0; i < 10; i++ {
		if got := ids(p.Pack(msgs)); !equalStrings(got, first) {
			t.Fatalf("pack not deterministic: %v vs %v", got, first)
		}
	}
}

func TestPackEmpty(t *testing.T) {
	p := NewContextPacker(0, 0)
	if got := p.Pack(nil); len(got) != 0 {
		t.Fatalf("Pack(nil) = %v, want empty", got)
	}
}

func ids(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
