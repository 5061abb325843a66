// Package parser converts raw source material into an ordered sequence of
// atomic items: caption cues, speaker turns, or prose sections. The format is
// detected from content structure; a caller-supplied hint pins parsing to one
// format, but in auto mode content wins because uploaded files are frequently
// mislabeled.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/mimir/internal/apperr"
)

// Format identifies a supported input format.
type Format string

// Supported format hints. FormatAuto (or empty) detects from content.
const (
	FormatAuto       Format = "auto"
	FormatVTT        Format = "vtt"
	FormatSRT        Format = "srt"
	FormatTranscript Format = "transcript"
	FormatText       Format = "text"
)

// Item is one atomic parsed unit. Seq is 0-based, gapless, and strictly
// increasing within one parse. Start is the offset from the beginning of the
// source; it is meaningful only when Timed is true and never decreases across
// the sequence.
type Item struct {
	Seq     int
	Text    string
	Speaker string
	Start   time.Duration
	Timed   bool
}

// Parse converts raw text into atomic items. Empty input yields an empty
// sequence and no error. An explicit hint disables cross-format fallback:
// input with no parsable structure in that format fails with
// apperr.ErrUnsupportedFormat. In auto mode the parser falls back to prose
// sections and, past that, to a single item holding the entire input, so
// non-empty input always parses.
func Parse(raw string, hint Format) ([]Item, error) {
	text := normalize(raw)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	switch hint {
	case FormatAuto, "":
		return parseAuto(text), nil
	case FormatVTT:
		return pinned(parseVTT(text), hint)
	case FormatSRT:
		return pinned(parseSRT(text), hint)
	case FormatTranscript:
		return pinned(parseTranscript(text), hint)
	case FormatText:
		return parseSections(text), nil
	default:
		return nil, fmt.Errorf("parser: unknown format hint %q: %w", hint, apperr.ErrUnsupportedFormat)
	}
}

func parseAuto(text string) []Item {
	switch {
	case looksVTT(text):
		if items := parseVTT(text); len(items) > 0 {
			return items
		}
	case looksSRT(text):
		if items := parseSRT(text); len(items) > 0 {
			return items
		}
	case looksTranscript(text):
		if items := parseTranscript(text); len(items) > 0 {
			return items
		}
	}
	return parseSections(text)
}

// pinned enforces an explicit format hint: zero items means the caller named
// a format the content does not have.
func pinned(items []Item, hint Format) ([]Item, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("parser: no parsable %s structure: %w", hint, apperr.ErrUnsupportedFormat)
	}
	return items, nil
}

// normalize strips a UTF-8 BOM and converts CRLF line endings.
func normalize(raw string) string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	return strings.ReplaceAll(raw, "\r\n", "\n")
}

func looksVTT(text string) bool {
	return strings.HasPrefix(strings.TrimLeft(text, "\n"), "WEBVTT")
}

// looksSRT reports whether the input opens with a numbered cue block: an
// integer line immediately followed by a cue timing line.
func looksSRT(text string) bool {
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines)-1; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !isInteger(line) {
			return false
		}
		return cueTimeRe.MatchString(strings.TrimSpace(lines[i+1]))
	}
	return false
}

// looksTranscript reports whether the majority of non-blank lines carry a
// speaker label, the shape exported by most meeting-transcript tools.
func looksTranscript(text string) bool {
	total, labeled := 0, 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if transcriptRe.MatchString(line) {
			labeled++
		}
	}
	return total > 0 && labeled*2 > total
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
