package recommender

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// envelope is the decoded form of the JSON object the prompt asks for.
type envelope struct {
	Answer          string
	Recommendations []pick
}

// pick is one recommendation as written by the model.
type pick struct {
	BookID      string
	Explanation string
}

// modelOutput is the model reply reduced to prose and ordered picks.
type modelOutput struct {
	Answer string
	Picks  []pick
	// Structured reports whether a JSON envelope was found.
	Structured bool
}

var (
	fenceRe   = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")
	bookTagRe = regexp.MustCompile(`\[BOOK id=([^\]\s]+)\]`)
)

// parseOutput extracts the answer and picks from raw model output. It tries,
// in order: the whole text as JSON, a fenced code block, and the outermost
// brace-delimited span. If none decode, the text is kept as the answer and
// picks are recovered from [BOOK id=...] tags and mentions of known IDs.
func parseOutput(raw string, known []string) modelOutput {
	text := strings.TrimSpace(raw)

	for _, candidate := range jsonCandidates(text) {
		if env, ok := decodeEnvelope(candidate); ok {
			return modelOutput{Answer: strings.TrimSpace(env.Answer), Picks: env.Recommendations, Structured: true}
		}
	}

	return modelOutput{Answer: text, Picks: mentions(text, known)}
}

func jsonCandidates(text string) []string {
	out := []string{text}
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	return out
}

func decodeEnvelope(s string) (envelope, bool) {
	if !strings.HasPrefix(s, "{") {
		return envelope{}, false
	}
	var raw struct {
		Answer          string            `json:"answer"`
		Recommendations []json.RawMessage `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return envelope{}, false
	}
	if raw.Answer == "" && raw.Recommendations == nil {
		return envelope{}, false
	}

	env := envelope{Answer: raw.Answer}
	for _, r := range raw.Recommendations {
		var p struct {
			BookID      any    `json:"book_id"`
			Explanation string `json:"explanation"`
		}
		if err := json.Unmarshal(r, &p); err != nil {
			continue
		}
		id := idString(p.BookID)
		if id == "" {
			continue
		}
		env.Recommendations = append(env.Recommendations, pick{BookID: id, Explanation: p.Explanation})
	}
	return env, true
}

// idString normalises a decoded book_id, which models sometimes emit as a
// number.
func idString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

// mentions recovers picks from free text in order of first appearance.
func mentions(text string, known []string) []pick {
	type hit struct {
		pos int
		id  string
	}
	first := make(map[string]int)
	note := func(id string, pos int) {
		if p, ok := first[id]; !ok || pos < p {
			first[id] = pos
		}
	}

	for _, m := range bookTagRe.FindAllStringSubmatchIndex(text, -1) {
		note(text[m[2]:m[3]], m[0])
	}
	for _, id := range known {
		if id == "" {
			continue
		}
		// IDs must stand alone: "7" should not match inside "4.7" or "b7".
		re := regexp.MustCompile(`(^|[^\w.-])` + regexp.QuoteMeta(id) + `($|[^\w.-]|\.($|\s))`)
		if loc := re.FindStringIndex(text); loc != nil {
			note(id, loc[0])
		}
	}

	hits := make([]hit, 0, len(first))
	for id, pos := range first {
		hits = append(hits, hit{pos: pos, id: id})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].id < hits[j].id
	})

	out := make([]pick, len(hits))
	for i, h := range hits {
		out[i] = pick{BookID: h.id}
	}
	return out
}
