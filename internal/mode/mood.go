package mode

import (
	"context"
	"strings"
	"unicode"
)

// Detector infers a mood signal from query text. A nil signal means the
// detector had nothing to say.
type Detector interface {
	Detect(ctx context.Context, text string) (*Signal, error)
}

var sadWords = map[string]bool{
	"sad": true, "down": true, "lonely": true, "tired": true, "anxious": true,
	"depressed": true, "upset": true, "heartbroken": true, "empty": true,
}

var happyWords = map[string]bool{
	"happy": true, "excited": true, "joy": true, "joyful": true,
	"optimistic": true, "delighted": true, "glad": true,
}

// KeywordDetector scores a query against small sad and happy word lists.
// Confidence is the winning side's share of all matched words, so "sad but
// happy" yields no signal and "sad and lonely" yields sad at 1.0.
type KeywordDetector struct{}

// Detect implements [Detector]. It never fails.
func (KeywordDetector) Detect(_ context.Context, text string) (*Signal, error) {
	var sad, happy int
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	}) {
		switch {
		case sadWords[w]:
			sad++
		case happyWords[w]:
			happy++
		}
	}

	total := sad + happy
	switch {
	case total == 0, sad == happy:
		return nil, nil
	case sad > happy:
		return &Signal{Label: "sad", Confidence: float64(sad) / float64(total)}, nil
	default:
		return &Signal{Label: "happy", Confidence: float64(happy) / float64(total)}, nil
	}
}
