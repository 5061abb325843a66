package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// transcriptRe captures the optional [hh:mm:ss] stamp, the speaker name,
	// and the utterance of a speaker-labeled transcript line.
	transcriptRe = regexp.MustCompile(`^\s*(?:\[((?:\d{1,2}:)?\d{1,2}:\d{2})\]\s*)?([A-Za-z][\w .'()-]{0,60}):\s+(\S.*)$`)

	headingRe = regexp.MustCompile(`^#{1,6}\s+\S`)
)

// parseTranscript converts speaker-labeled lines into one item per turn.
// Unlabeled lines continue the previous turn; unlabeled lines before the
// first turn are dropped (headers emitted by transcription tools).
func parseTranscript(text string) []Item {
	var items []Item
	var last time.Duration
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := transcriptRe.FindStringSubmatch(line)
		if m == nil {
			if len(items) > 0 {
				items[len(items)-1].Text += "\n" + strings.TrimSpace(line)
			}
			continue
		}
		it := Item{Seq: len(items), Speaker: strings.TrimSpace(m[2]), Text: strings.TrimSpace(m[3])}
		if m[1] != "" {
			start := stampDuration(m[1])
			if start < last {
				start = last
			}
			last = start
			it.Start = start
			it.Timed = true
		}
		items = append(items, it)
	}
	return items
}

// stampDuration parses "mm:ss" or "hh:mm:ss" stamps.
func stampDuration(stamp string) time.Duration {
	var d time.Duration
	for _, p := range strings.Split(stamp, ":") {
		n, _ := strconv.Atoi(p)
		d = d*60 + time.Duration(n)*time.Second
	}
	return d
}

// parseSections splits prose into heading- or blank-line-bounded sections,
// one untimed item per section. Input with no boundaries at all yields a
// single item holding the whole text.
func parseSections(text string) []Item {
	var items []Item
	flush := func(lines []string) {
		body := strings.TrimSpace(strings.Join(lines, "\n"))
		if body == "" {
			return
		}
		items = append(items, Item{Seq: len(items), Text: body})
	}
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.TrimSpace(line) == "":
			flush(cur)
			cur = nil
		case headingRe.MatchString(line):
			flush(cur)
			cur = []string{line}
		default:
			cur = append(cur, line)
		}
	}
	flush(cur)
	if len(items) == 0 {
		items = append(items, Item{Seq: 0, Text: strings.TrimSpace(text)})
	}
	return items
}
