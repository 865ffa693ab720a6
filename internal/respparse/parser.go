// Package respparse parses semi-structured model output — a block of
// labeled sections — into typed records, and packs those records back
// into indexable chunks.
//
// The input format is four optional sections, each introduced by a
// header line and running until the next header or end of input:
//
//	=== FULL TEXT CONTENT ===
//	=== SUMMARY ===
//	=== KEY POINTS ===
//	=== TOPICS COVERED ===
//
// The parser is deliberately permissive: it consumes free-text model
// output, which is not guaranteed to be well-formed. Missing sections
// yield empty fields, never an error.
package respparse

import (
	"strings"

	"github.com/groundlabs/sopqa/internal/domain"
)

// Canonical section headers. The analyzer embeds these same strings in
// its extraction prompt so the model's reply round-trips through Parse.
const (
	HeaderText      = "=== FULL TEXT CONTENT ==="
	HeaderSummary   = "=== SUMMARY ==="
	HeaderKeyPoints = "=== KEY POINTS ==="
	HeaderTopics    = "=== TOPICS COVERED ==="
)

// section is the parser state: which labeled section the scan is inside.
type section int

const (
	sectionNone section = iota
	sectionText
	sectionSummary
	sectionKeyPoints
	sectionTopics
)

// transition maps a header marker (lowercased) to the state it enters.
type transition struct {
	marker string
	next   section
}

var transitions = []transition{
	{strings.ToLower(HeaderText), sectionText},
	{strings.ToLower(HeaderSummary), sectionSummary},
	{strings.ToLower(HeaderKeyPoints), sectionKeyPoints},
	{strings.ToLower(HeaderTopics), sectionTopics},
}

// headerTransition returns the state a line switches into, if the line
// contains a section header (case-insensitive).
func headerTransition(line string) (section, bool) {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, t := range transitions {
		if strings.Contains(lower, t.marker) {
			return t.next, true
		}
	}
	return sectionNone, false
}

// Parse scans raw model output line by line and assembles a
// ProcessedContent. Lines before any header, or under an unrecognized
// header, are discarded. For the text and summary sections lines are
// kept verbatim; for key points and topics only bulleted lines
// ("-" or "•") are kept, with the marker stripped.
func Parse(raw, source string, pageNumber int) domain.ProcessedContent {
	var (
		text      strings.Builder
		summary   strings.Builder
		keyPoints []string
		topics    []string
	)

	state := sectionNone
	for _, line := range strings.Split(raw, "\n") {
		if next, ok := headerTransition(line); ok {
			state = next
			continue
		}

		switch state {
		case sectionText:
			text.WriteString(line)
			text.WriteByte('\n')
		case sectionSummary:
			summary.WriteString(line)
			summary.WriteByte('\n')
		case sectionKeyPoints:
			if item, ok := bulletItem(line); ok {
				keyPoints = append(keyPoints, item)
			}
		case sectionTopics:
			if item, ok := bulletItem(line); ok {
				topics = append(topics, item)
			}
		case sectionNone:
			// Preamble before the first header is discarded.
		}
	}

	return domain.ProcessedContent{
		Text:       strings.TrimSpace(text.String()),
		Summary:    strings.TrimSpace(summary.String()),
		KeyPoints:  keyPoints,
		Topics:     topics,
		Source:     source,
		PageNumber: pageNumber,
		Raw:        raw,
	}
}

// bulletItem extracts the content of a bulleted line, stripping the
// leading "-" or "•" marker and surrounding whitespace.
func bulletItem(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "•") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(trimmed, "-•")), true
}
