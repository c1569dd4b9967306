package mode

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// systemTemplate is the system prompt shared by every variant. Sections are
// switched on by the variant flags; style and mood guidance is pre-rendered
// into plain text before formatting.
const systemTemplate = `You are a book recommendation assistant. You recommend books ONLY from the
retrieved catalog excerpts supplied in the user message. Each excerpt starts
with a line of the form [BOOK id=<book_id>].

Rules:
- Never recommend a book that is not in the excerpts.
- Refer to books by the exact book_id shown in their [BOOK id=...] header.
- Order recommendations from best to weakest fit.
- If none of the excerpts fit the request, say so honestly and recommend the closest one.

Style: {{.style_guidance}}
{{- if .mood_guidance}}
Reader mood: {{.mood_guidance}}
{{- end}}
{{- if .explain}}

For every recommended book, give a short explanation in that book's
"explanation" field, paired with its own book_id. Base each explanation
only on details in that book's excerpt (genre, premise, tone, rating);
never use outside knowledge about the book or its author.
{{- end}}
{{- if .alternative}}

This is a second opinion. The reader has already seen some recommendations;
offer different picks and do not repeat the excluded books listed in the
user message.
{{- end}}

Respond with ONLY a JSON object in this exact shape, no markdown fencing:

{
  "answer": "<your reply to the reader>",
  "recommendations": [
    { "book_id": "<id>", "explanation": "<{{if .explain}}why this book fits{{else}}leave empty{{end}}>" }
  ]
}`

// userTemplate carries the per-request data. Values are substituted as
// template data, never parsed as template text.
const userTemplate = `Request: {{.query}}
{{- if .excluded}}

Already recommended (do not repeat): {{.excluded}}
{{- end}}

Retrieved books:

{{.context}}`

var styleGuidance = map[Style]string{
	StyleFriendly: "warm and conversational, like a well-read friend. Two or three short paragraphs.",
	StyleFormal:   "neutral, precise and professional. No slang or exclamation marks.",
	StyleConcise:  "brief. At most three sentences in the answer.",
	StyleDetailed: "thorough. Discuss each recommended book in its own paragraph, covering premise, tone and who will enjoy it.",
}

var moodGuidance = map[string]string{
	"happy":   "upbeat. Match their energy and lean toward joyful, uplifting reads.",
	"sad":     "low. Be gentle and prefer comforting or hopeful books; avoid bleak picks unless asked.",
	"anxious": "anxious. Be calm and reassuring and favour soothing, low-stakes stories.",
	"excited": "excited. Share the enthusiasm and favour gripping, fast-paced books.",
	"relaxed": "relaxed. Suggest easygoing, unhurried reads.",
	"curious": "curious. Highlight books with ideas to explore.",
}

// Variant identifies one prompt template: a style crossed with the explain
// and alternative flags. Mood only adjusts wording inside a variant.
type Variant struct {
	// Style is the answer style.
	Style Style
	// Explain enables the per-book explanation section.
	Explain bool
	// Alternative enables the second-opinion section.
	Alternative bool
}

// Variant returns the template variant for m.
func (m GenerationMode) Variant() Variant {
	return Variant{Style: m.Style, Explain: m.ExplainWhy, Alternative: m.WantAlternative}
}

// Tag returns a stable label such as "concise+explain+alternative", used for
// logs and metric labels.
func (v Variant) Tag() string {
	parts := []string{string(v.Style)}
	if v.Explain {
		parts = append(parts, "explain")
	}
	if v.Alternative {
		parts = append(parts, "alternative")
	}
	return strings.Join(parts, "+")
}

// Params are the model sampling parameters for a variant.
type Params struct {
	// Temperature is passed to the chat model.
	Temperature float32
	// MaxTokens caps the completion length.
	MaxTokens int
}

// Params returns the sampling parameters for the variant's style. Explain
// mode gets extra headroom for the per-book justifications.
func (v Variant) Params() Params {
	var p Params
	switch v.Style {
	case StyleFormal:
		p = Params{Temperature: 0.3, MaxTokens: 600}
	case StyleConcise:
		p = Params{Temperature: 0.2, MaxTokens: 250}
	case StyleDetailed:
		p = Params{Temperature: 0.5, MaxTokens: 1200}
	default:
		p = Params{Temperature: 0.7, MaxTokens: 600}
	}
	if v.Explain {
		p.MaxTokens += p.MaxTokens / 2
	}
	return p
}

// PromptInput is the request data rendered into a prompt.
type PromptInput struct {
	// Query is the reader's request text.
	Query string
	// Context is the grounding block produced by the context builder.
	Context string
	// Excluded lists book IDs the reader has already been shown.
	Excluded []string
	// Mood is the resolved mood.
	Mood Mood
}

// Render formats the system and user messages for the variant. It performs no
// I/O and is safe for concurrent use.
func (v Variant) Render(ctx context.Context, in PromptInput) ([]*schema.Message, error) {
	style, ok := styleGuidance[v.Style]
	if !ok {
		return nil, fmt.Errorf("mode: render: unknown style %q: %w", v.Style, ErrInvalidMode)
	}

	mood := ""
	if !in.Mood.Neutral() {
		mood = "the reader seems " + moodGuidance[in.Mood.Label]
	}

	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(systemTemplate),
		schema.UserMessage(userTemplate),
	)

	msgs, err := tpl.Format(ctx, map[string]any{
		"style_guidance": style,
		"mood_guidance":  mood,
		"explain":        v.Explain,
		"alternative":    v.Alternative,
		"query":          in.Query,
		"excluded":       strings.Join(in.Excluded, ", "),
		"context":        in.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("mode: render %s: %w", v.Tag(), err)
	}
	return msgs, nil
}
