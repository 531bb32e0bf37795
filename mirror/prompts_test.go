package mirror

import (
	"strings"
	"testing"
)

func TestPromptForLevel(t *testing.T) {
	seen := map[string]int{}
	for _, level := range []int{1, 2, 3} {
		p := PromptForLevel(level)
		if !strings.Contains(p, keepIdentity) {
			t.Errorf("level %d prompt does not keep identity", level)
		}
		if !strings.HasPrefix(p, basePrompt) {
			t.Errorf("level %d prompt does not start with the base prompt", level)
		}
		if other, dup := seen[p]; dup {
			t.Errorf("level %d prompt equals level %d prompt", level, other)
		}
		seen[p] = level
	}

	tests := []struct {
		name  string
		level int
	}{
		{"zero", 0},
		{"negative", -1},
		{"above range", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PromptForLevel(tt.level)
			if !strings.Contains(p, fallbackPrompt) {
				t.Errorf("PromptForLevel(%d) did not use the combined prompt", tt.level)
			}
			if !strings.Contains(p, keepIdentity) {
				t.Errorf("PromptForLevel(%d) does not keep identity", tt.level)
			}
		})
	}

	if !strings.Contains(PromptForLevel(2), "closer") {
		t.Error("level 2 prompt should move the camera closer")
	}
	if !strings.Contains(PromptForLevel(3), "pose") {
		t.Error("level 3 prompt should nudge poses")
	}
}
