package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// cueTimeRe matches SRT and WebVTT cue timing lines. Hours are optional
	// and both millisecond separators are accepted; exports mix them freely.
	cueTimeRe = regexp.MustCompile(`^(?:(\d{1,2}):)?(\d{1,2}):(\d{2})[.,](\d{1,3})\s*-->\s*(?:\d{1,2}:)?\d{1,2}:\d{2}[.,]\d{1,3}`)

	// voiceRe matches a WebVTT voice span, "<v Speaker>text".
	voiceRe = regexp.MustCompile(`(?s)^<v\s+([^>]+)>\s*(.*)$`)

	// speakerLabelRe matches a bare "Name: text" prefix inside cue payloads.
	speakerLabelRe = regexp.MustCompile(`(?s)^([A-Za-z][\w .'()-]{0,60}):\s+(.*)$`)
)

// parseVTT splits a WebVTT file into cue items. The header is skipped;
// NOTE/STYLE blocks and malformed cues are dropped, not fatal.
func parseVTT(text string) []Item {
	blocks := splitBlocks(text)
	if len(blocks) > 0 && strings.HasPrefix(blocks[0][0], "WEBVTT") {
		// Usually the header is its own block, but some encoders butt the
		// first cue up against it without a blank line.
		head := blocks[0]
		cut := len(head)
		for i, line := range head {
			if i > 0 && strings.Contains(line, "-->") {
				cut = i
				break
			}
		}
		if cut < len(head) {
			blocks[0] = head[cut:]
		} else {
			blocks = blocks[1:]
		}
	}
	return cueItems(blocks, false)
}

// parseSRT splits a SubRip file into cue items. Cue numbers are advisory:
// ordering comes from position, and broken blocks are skipped.
func parseSRT(text string) []Item {
	return cueItems(splitBlocks(text), true)
}

// cueItems converts caption blocks into items. numbered controls whether a
// leading integer line (the SRT cue counter) is expected and discarded.
func cueItems(blocks [][]string, numbered bool) []Item {
	var items []Item
	var last time.Duration
	for _, block := range blocks {
		lines := block
		first := strings.TrimSpace(lines[0])
		if strings.HasPrefix(first, "NOTE") || strings.HasPrefix(first, "STYLE") || strings.HasPrefix(first, "REGION") {
			continue
		}
		if numbered && isInteger(first) {
			lines = lines[1:]
		}
		// WebVTT allows an identifier line before the timing line.
		if !numbered && len(lines) > 1 && !strings.Contains(lines[0], "-->") && strings.Contains(lines[1], "-->") {
			lines = lines[1:]
		}
		if len(lines) < 2 {
			continue
		}
		start, ok := parseCueStart(lines[0])
		if !ok {
			continue // malformed cue: skip, keep parsing
		}
		speaker, body := splitSpeaker(strings.Join(lines[1:], "\n"))
		if strings.TrimSpace(body) == "" {
			continue
		}
		if start < last {
			start = last // keep timecodes non-decreasing
		}
		last = start
		items = append(items, Item{
			Seq:     len(items),
			Text:    body,
			Speaker: speaker,
			Start:   start,
			Timed:   true,
		})
	}
	return items
}

// splitBlocks divides text into blank-line separated groups of lines.
func splitBlocks(text string) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

// parseCueStart extracts the start offset from a cue timing line.
func parseCueStart(line string) (time.Duration, bool) {
	m := cueTimeRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return 0, false
	}
	return clockDuration(m[1], m[2], m[3], m[4]), true
}

// clockDuration assembles a duration from clock fields; hours may be empty.
func clockDuration(hh, mm, ss, frac string) time.Duration {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac)
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond
}

// splitSpeaker separates a leading speaker label from cue text. Both WebVTT
// voice spans and plain "Name:" prefixes are recognised.
func splitSpeaker(body string) (speaker, text string) {
	body = strings.TrimSpace(body)
	if m := voiceRe.FindStringSubmatch(body); m != nil {
		text = strings.TrimSuffix(strings.TrimSpace(m[2]), "</v>")
		return strings.TrimSpace(m[1]), strings.TrimSpace(text)
	}
	if m := speakerLabelRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return "", body
}
