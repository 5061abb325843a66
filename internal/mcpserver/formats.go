package mcpserver

// InputFormatsGuide describes the input formats the ingest pipeline accepts.
// LLM consumers should read it before pinning a format on ingest_transcript.
const InputFormatsGuide = `# Mimir Input Formats

The ingest pipeline converts raw payloads into an ordered sequence of atomic
items (caption cues, speaker turns, or prose sections) before chunking and
indexing. The format is detected from content structure; a format pin is only
needed when detection must not fall back.

## Accepted formats

` + "```" + `
vtt         WebVTT captions. File starts with "WEBVTT"; cues carry
            "00:00:01.000 --> 00:00:04.000" timing lines.
srt         SubRip captions. Numbered cue blocks with
            "00:00:01,000 --> 00:00:04,000" timing lines.
transcript  Speaker-labeled lines, optionally timestamped:
            "[00:12] Alice: text" or "Alice: text". One item per turn;
            unlabeled lines continue the previous turn.
text        Plain prose. Split into sections on Markdown headings and
            blank lines.
` + "```" + `

## Rules

1. **Detection order** is vtt, srt, transcript, text. The first structure
   that matches wins; plain text is the fallback, so any non-empty payload
   ingests.
2. **Pinning a format** (the ` + "`" + `format` + "`" + ` argument) disables the fallback.
   A payload with no parsable structure in the pinned format is rejected.
3. **Timestamps** are kept as offsets from the start of the source and never
   go backwards across the sequence.
4. **Speaker names** survive into the indexed chunks, so search queries can
   mention who said something.
5. **Encoding** is UTF-8; a leading BOM and CRLF line endings are tolerated.

## Example

` + "```" + `
[00:00] Alice: The quarterly budget is our first topic.
[00:07] Bob: Numbers came in above forecast.
Carry-over line without a label continues Bob's turn.
[00:15] Alice: Moving on.
` + "```" + `
`
