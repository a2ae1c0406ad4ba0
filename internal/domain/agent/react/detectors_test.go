package react

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintIsStableAndOrderIndependent(t *testing.T) {
	a := Fingerprint(map[string]any{"matter_id": "m-1", "hours": 2.0, "notes": map[string]any{"b": 1, "a": 2}})
	b := Fingerprint(map[string]any{"notes": map[string]any{"a": 2, "b": 1}, "hours": 2.0, "matter_id": "m-1"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, Fingerprint(map[string]any{"matter_id": "m-2", "hours": 2.0}))
	assert.Equal(t, Fingerprint(nil), Fingerprint(map[string]any{}))
}

func TestStuckDetector(t *testing.T) {
	tests := []struct {
		name  string
		calls [][2]string
		want  []bool
	}{
		{
			name:  "three identical",
			calls: [][2]string{{"find", "x"}, {"find", "x"}, {"find", "x"}},
			want:  []bool{false, false, true},
		},
		{
			name:  "two identical then different",
			calls: [][2]string{{"find", "x"}, {"find", "x"}, {"find", "y"}, {"find", "y"}},
			want:  []bool{false, false, false, false},
		},
		{
			name:  "same args different tool",
			calls: [][2]string{{"find", "x"}, {"log", "x"}, {"find", "x"}},
			want:  []bool{false, false, false},
		},
		{
			name:  "reset then streak",
			calls: [][2]string{{"a", "1"}, {"a", "1"}, {"b", "1"}, {"a", "1"}, {"a", "1"}, {"a", "1"}},
			want:  []bool{false, false, false, false, false, true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newStuckDetector(DefaultStuckThreshold)
			for i, call := range tt.calls {
				assert.Equal(t, tt.want[i], d.Observe(call[0], call[1]), "call %d", i)
			}
		})
	}
}

func TestPhraseCompletion(t *testing.T) {
	detector := NewPhraseCompletion(5)
	tests := []struct {
		name       string
		content    string
		iterations int
		want       bool
	}{
		{"phrase below floor", "Task complete.", 4, false},
		{"phrase at floor", "Task complete.", 5, true},
		{"case and spacing", "ALL   steps\ncompleted", 7, true},
		{"no phrase", "I will now log the time.", 9, false},
		{"empty", "", 9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.IsComplete(tt.content, tt.iterations))
		})
	}
	assert.Equal(t, DefaultMinCompletionIterations, NewPhraseCompletion(0).MinIterations)
}
