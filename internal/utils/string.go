package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var subjectPrefixRegex = regexp.MustCompile(`(?i)^(Re|Fwd|Fw)(\[\d+\])?:\s*`)

// NormalizeEmailSubject removes prefixes like Re:, Fwd:, etc. from a subject.
// Stacked prefixes ("Re: Fwd: Re: hello") are all stripped.
func NormalizeEmailSubject(subject string) string {
	subject = strings.TrimSpace(subject)
	for subjectPrefixRegex.MatchString(subject) {
		subject = subjectPrefixRegex.ReplaceAllString(subject, "")
		subject = strings.TrimSpace(subject)
	}
	return subject
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}

// SplitReferences parses a References header value into a list of clean
// Message-IDs. Entries can be separated by whitespace, commas or folded
// line breaks; angle brackets are stripped and duplicates removed.
func SplitReferences(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", " ")
	raw = strings.ReplaceAll(raw, "\n", " ")
	raw = strings.ReplaceAll(raw, ",", " ")

	var refs []string
	for _, ref := range strings.Fields(raw) {
		ref = strings.Trim(ref, "<>")
		if ref != "" && !IsStringInSlice(ref, refs) {
			refs = append(refs, ref)
		}
	}
	return refs
}

var filenameWhitespaceRegex = regexp.MustCompile(`\s+`)

const maxFilenameLength = 120

// SanitizeFilename makes an attachment filename safe to write to disk:
// path separators and control characters are stripped, runs of whitespace
// collapse to a single underscore and the result is length-bounded.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':':
			continue
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}

	clean := filenameWhitespaceRegex.ReplaceAllString(b.String(), "_")
	clean = strings.Trim(clean, ".")
	if clean == "" {
		clean = "attachment"
	}
	if len(clean) > maxFilenameLength {
		// Cut on a rune boundary so the truncated name stays valid UTF-8.
		cut := maxFilenameLength
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = clean[:cut]
	}
	return clean
}
