package mode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	ctrl := NewController()
	sad := &Signal{Label: "sad", Confidence: 0.8}
	weak := &Signal{Label: "happy", Confidence: 0.3}

	tests := []struct {
		name    string
		ctrl    Controller
		req     Request
		signal  *Signal
		want    GenerationMode
		wantErr bool
	}{
		{
			name: "defaults",
			ctrl: ctrl,
			want: GenerationMode{Style: StyleFriendly, Mood: Mood{Source: MoodNeutral, Label: LabelNeutral}},
		},
		{
			name:   "detected mood used",
			ctrl:   ctrl,
			req:    Request{Style: "Concise"},
			signal: sad,
			want:   GenerationMode{Style: StyleConcise, Mood: Mood{Source: MoodDetected, Label: "sad"}},
		},
		{
			name:   "explicit mood wins over detection",
			ctrl:   ctrl,
			req:    Request{Mood: "curious", ExplainWhy: true},
			signal: sad,
			want:   GenerationMode{Style: StyleFriendly, Mood: Mood{Source: MoodExplicit, Label: "curious"}, ExplainWhy: true},
		},
		{
			name:   "low confidence ignored",
			ctrl:   ctrl,
			signal: weak,
			want:   GenerationMode{Style: StyleFriendly, Mood: Mood{Source: MoodNeutral, Label: LabelNeutral}},
		},
		{
			name:   "detection disabled",
			ctrl:   Controller{},
			req:    Request{WantAlternative: true},
			signal: sad,
			want:   GenerationMode{Style: StyleFriendly, Mood: Mood{Source: MoodNeutral, Label: LabelNeutral}, WantAlternative: true},
		},
		{
			name:   "unsupported detected label ignored",
			ctrl:   ctrl,
			signal: &Signal{Label: "furious", Confidence: 1},
			want:   GenerationMode{Style: StyleFriendly, Mood: Mood{Source: MoodNeutral, Label: LabelNeutral}},
		},
		{name: "unknown style", ctrl: ctrl, req: Request{Style: "poetic"}, wantErr: true},
		{name: "unknown mood", ctrl: ctrl, req: Request{Mood: "hangry"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.ctrl.Resolve(tc.req, tc.signal)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMode) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidMode", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestResolve_Pure(t *testing.T) {
	t.Parallel()

	ctrl := NewController()
	req := Request{Style: "detailed", ExplainWhy: true}
	sig := &Signal{Label: "happy", Confidence: 0.9}
	first, _ := ctrl.Resolve(req, sig)
	for range 10 {
		if again, _ := ctrl.Resolve(req, sig); again != first {
			t.Fatalf("Resolve is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestKeywordDetector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text      string
		wantLabel string
		wantConf  float64
	}{
		{"I'm feeling sad and lonely tonight", "sad", 1},
		{"So happy! Something joyful please", "happy", 1},
		{"sad, lonely but glad", "sad", 2.0 / 3.0},
		{"sad but happy", "", 0},
		{"a space opera with big battles", "", 0},
	}
	for _, tc := range tests {
		sig, err := KeywordDetector{}.Detect(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("Detect(%q) error: %v", tc.text, err)
		}
		if tc.wantLabel == "" {
			if sig != nil {
				t.Errorf("Detect(%q) = %+v, want nil", tc.text, sig)
			}
			continue
		}
		if sig == nil || sig.Label != tc.wantLabel || sig.Confidence != tc.wantConf {
			t.Errorf("Detect(%q) = %+v, want %s@%v", tc.text, sig, tc.wantLabel, tc.wantConf)
		}
	}
}

func TestVariant_TagAndParams(t *testing.T) {
	t.Parallel()

	m := GenerationMode{Style: StyleConcise, ExplainWhy: true, WantAlternative: true}
	v := m.Variant()
	if got := v.Tag(); got != "concise+explain+alternative" {
		t.Errorf("Tag() = %q", got)
	}
	if p := v.Params(); p.Temperature != 0.2 || p.MaxTokens != 375 {
		t.Errorf("Params() = %+v, want 0.2/375", p)
	}
	if p := (Variant{Style: StyleDetailed}).Params(); p.MaxTokens != 1200 {
		t.Errorf("detailed MaxTokens = %d, want 1200", p.MaxTokens)
	}
}

func TestRender(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	in := PromptInput{
		Query:    "a cozy mystery {{.context}}",
		Context:  "[BOOK id=m1]\nTitle: Murder Most Cozy",
		Excluded: []string{"m2", "m3"},
		Mood:     Mood{Source: MoodDetected, Label: "sad"},
	}

	msgs, err := Variant{Style: StyleFriendly, Explain: true, Alternative: true}.Render(ctx, in)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("Render() = %d messages, want system+user", len(msgs))
	}
	sys, user := msgs[0].Content, msgs[1].Content
	for _, want := range []string{"warm and conversational", "Reader mood: the reader seems low", "short explanation", "paired with its own book_id", "never use outside knowledge", "second opinion"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	for _, want := range []string{"Request: a cozy mystery {{.context}}", "do not repeat): m2, m3", "[BOOK id=m1]"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}

	plain, err := Variant{Style: StyleFormal}.Render(ctx, PromptInput{Query: "q", Context: "c", Mood: Mood{Source: MoodNeutral, Label: LabelNeutral}})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, absent := range []string{"Reader mood", "short explanation", "outside knowledge", "second opinion"} {
		if strings.Contains(plain[0].Content, absent) {
			t.Errorf("plain variant unexpectedly contains %q", absent)
		}
	}
	if strings.Contains(plain[1].Content, "Already recommended") {
		t.Error("plain variant must not list exclusions")
	}
}

func TestRender_UnknownStyle(t *testing.T) {
	t.Parallel()

	if _, err := (Variant{Style: "poetic"}).Render(context.Background(), PromptInput{}); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("Render() error = %v, want ErrInvalidMode", err)
	}
}
