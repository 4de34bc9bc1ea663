package processing

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// nonLetters matches everything the clustering vocabulary cannot contain.
// The Cyrillic range intentionally stops at я, so ё is dropped as well.
var nonLetters = regexp.MustCompile(`[^a-zA-Zа-яА-Я#]`)

// MinTokenLength is the shortest token kept by CleanDocument, exclusive.
const MinTokenLength = 3

// CleanDocument keeps Latin and Cyrillic letters and '#', drops tokens of
// MinTokenLength runes or fewer and lowercases the result.
func CleanDocument(input string) string {
	if input == "" {
		return ""
	}
	letters := nonLetters.ReplaceAllString(input, " ")

	fields := strings.Fields(letters)
	kept := fields[:0]
	for _, token := range fields {
		if utf8.RuneCountInString(token) > MinTokenLength {
			kept = append(kept, token)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}

// CleanDocuments applies CleanDocument to every document.
func CleanDocuments(docs []string) []string {
	out := make([]string, len(docs))
	for i, doc := range docs {
		out[i] = CleanDocument(doc)
	}
	return out
}

// BuildDocumentID hashes the article link, falling back to title and timestamp for link-less records.
func BuildDocumentID(source, link, title, timestamp string) string {
	key := strings.TrimSpace(link)
	if key == "" {
		key = source + "|" + title + "|" + timestamp
	}
	s := sha1.Sum([]byte(key))
	return hex.EncodeToString(s[:])
}
