// Package mode resolves how a recommendation is phrased: the response style,
// the reader's mood, and whether per-book explanations or a second opinion
// were requested. Resolution is a pure function of the request and an
// optional mood signal, so the same inputs always produce the same mode.
package mode

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidMode is returned when a requested style or mood is not supported.
var ErrInvalidMode = errors.New("invalid generation mode")

// Style selects the tone and length of the generated answer.
type Style string

const (
	// StyleFriendly is warm and conversational. It is the default.
	StyleFriendly Style = "friendly"
	// StyleFormal is neutral and precise.
	StyleFormal Style = "formal"
	// StyleConcise keeps the answer to a few sentences.
	StyleConcise Style = "concise"
	// StyleDetailed discusses each pick at length.
	StyleDetailed Style = "detailed"
)

// Styles lists every supported style in display order.
var Styles = []Style{StyleFriendly, StyleFormal, StyleConcise, StyleDetailed}

// ParseStyle validates s. An empty string selects [StyleFriendly].
func ParseStyle(s string) (Style, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StyleFriendly, nil
	}
	if slices.Contains(Styles, Style(s)) {
		return Style(s), nil
	}
	return "", fmt.Errorf("mode: unknown style %q: %w", s, ErrInvalidMode)
}

// MoodSource records where the resolved mood came from.
type MoodSource string

const (
	// MoodDetected means the label came from a mood detector signal.
	MoodDetected MoodSource = "detected"
	// MoodNeutral means no usable mood was available.
	MoodNeutral MoodSource = "neutral"
	// MoodExplicit means the caller named the mood.
	MoodExplicit MoodSource = "explicit"
)

// LabelNeutral is the mood label used when no mood applies.
const LabelNeutral = "neutral"

// Moods lists the supported mood labels.
var Moods = []string{LabelNeutral, "happy", "sad", "anxious", "excited", "relaxed", "curious"}

// Mood is the resolved reader mood.
type Mood struct {
	// Source is detected, neutral or explicit.
	Source MoodSource `json:"source"`
	// Label is one of [Moods].
	Label string `json:"label"`
}

// Neutral reports whether the mood carries no tone adjustment.
func (m Mood) Neutral() bool { return m.Label == "" || m.Label == LabelNeutral }

// GenerationMode is the fully resolved, immutable mode for one request.
type GenerationMode struct {
	// Style is the answer style.
	Style Style `json:"style"`
	// Mood is the resolved reader mood.
	Mood Mood `json:"mood"`
	// ExplainWhy asks for a justification per recommended book.
	ExplainWhy bool `json:"explain_why"`
	// WantAlternative asks for picks that differ from a prior answer.
	WantAlternative bool `json:"want_alternative"`
}

// Request carries the caller's raw mode preferences.
type Request struct {
	// Style is the requested style name. Empty selects the default.
	Style string
	// Mood is an explicit mood label. Empty defers to detection.
	Mood string
	// ExplainWhy passes through to the resolved mode.
	ExplainWhy bool
	// WantAlternative passes through to the resolved mode.
	WantAlternative bool
}

// Signal is a mood detector's verdict for one query.
type Signal struct {
	// Label is the detected mood.
	Label string
	// Confidence is in [0, 1].
	Confidence float64
}

// DefaultMinConfidence is the detector confidence required to adopt a
// detected mood.
const DefaultMinConfidence = 0.5

// Controller resolves requests into generation modes. The zero value has
// detection disabled.
type Controller struct {
	// DetectionEnabled allows detected signals to set the mood.
	DetectionEnabled bool
	// MinConfidence is the threshold a signal must reach to be used.
	MinConfidence float64
}

// NewController returns a Controller with detection enabled at
// [DefaultMinConfidence].
func NewController() Controller {
	return Controller{DetectionEnabled: true, MinConfidence: DefaultMinConfidence}
}

// Resolve validates req and combines it with the optional detected signal.
// An explicit mood always wins over detection. Unknown styles or moods fail
// with [ErrInvalidMode].
func (c Controller) Resolve(req Request, detected *Signal) (GenerationMode, error) {
	style, err := ParseStyle(req.Style)
	if err != nil {
		return GenerationMode{}, err
	}

	mood, err := c.resolveMood(req.Mood, detected)
	if err != nil {
		return GenerationMode{}, err
	}

	return GenerationMode{
		Style:           style,
		Mood:            mood,
		ExplainWhy:      req.ExplainWhy,
		WantAlternative: req.WantAlternative,
	}, nil
}

func (c Controller) resolveMood(explicit string, detected *Signal) (Mood, error) {
	if label := strings.ToLower(strings.TrimSpace(explicit)); label != "" {
		if !slices.Contains(Moods, label) {
			return Mood{}, fmt.Errorf("mode: unknown mood %q: %w", explicit, ErrInvalidMode)
		}
		return Mood{Source: MoodExplicit, Label: label}, nil
	}

	if c.DetectionEnabled && detected != nil && detected.Confidence >= c.MinConfidence {
		label := strings.ToLower(detected.Label)
		// A detector may emit labels outside the supported set; those are
		// treated as no signal rather than as a caller error.
		if slices.Contains(Moods, label) {
			return Mood{Source: MoodDetected, Label: label}, nil
		}
	}

	return Mood{Source: MoodNeutral, Label: LabelNeutral}, nil
}
