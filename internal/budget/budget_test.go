package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.SystemMessage("recommend books"), // 4 + Estimate("system")=1 + Estimate(15 chars)=3 = 8
		schema.UserMessage("hello world"),       // 4 + Estimate("user")=1 + Estimate(11 chars)=2 = 7
		nil,
	}
	if got := EstimateMessages(msgs); got != 15 {
		t.Errorf("EstimateMessages = %d, want 15", got)
	}
}

func Test_EstimateMessages_Empty(t *testing.T) {
	t.Parallel()
	if got := EstimateMessages(nil); got != 0 {
		t.Errorf("EstimateMessages(nil) = %d, want 0", got)
	}
}

func Test_Remaining(t *testing.T) {
	t.Parallel()
	if got := Remaining(100, 40); got != 60 {
		t.Errorf("Remaining(100,40) = %d", got)
	}
	if got := Remaining(100, 140); got != 0 {
		t.Errorf("Remaining(100,140) = %d, want 0", got)
	}
}

func Test_DefaultsOrdered(t *testing.T) {
	t.Parallel()
	if DefaultContextTokens >= DefaultMaxPromptTokens {
		t.Errorf("context budget %d must leave room inside prompt budget %d", DefaultContextTokens, DefaultMaxPromptTokens)
	}
}
