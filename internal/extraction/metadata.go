// Package extraction turns call-center dialog transcripts into validated QA
// pairs: filename metadata parsing, transcript cleanup, LLM extraction, and
// quality filtering.
package extraction

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/qaforge/qaforge/internal/store"
)

// Transcript filenames follow the telephony export convention:
// <dialogid>-<direction>-<operator>-<client>-<YYYYMMDD>-<HHMMSS>[-extra].txt
// e.g. 1756875457398472-in-74242490943-79140887950-20250903-075542-1756875342.2004096.txt

// timecodeRe matches transcription timecodes like "[0.00 - 18.74]".
var timecodeRe = regexp.MustCompile(`\[\d+\.\d+\s*-\s*\d+\.\d+\]`)

// spaceRunRe collapses runs of spaces and tabs.
var spaceRunRe = regexp.MustCompile(`[ \t]+`)

// ParseFilename extracts call metadata from a transcript filename. It
// returns an error for filenames that do not follow the export convention;
// extraction still proceeds for such files, just without call metadata.
func ParseFilename(filename string) (*store.CallMetadata, error) {
	name := strings.TrimSuffix(filename, ".txt")
	parts := strings.Split(name, "-")
	if len(parts) < 6 {
		return nil, fmt.Errorf("extraction: unexpected filename format: %s", filename)
	}

	dateStr := parts[4]
	timeStr := parts[5]
	if len(dateStr) != 8 || len(timeStr) < 6 {
		return nil, fmt.Errorf("extraction: unexpected date/time in filename: %s", filename)
	}

	clientPhone := strings.TrimLeft(strings.ReplaceAll(parts[3], "+", ""), "_")

	return &store.CallMetadata{
		DialogID:      parts[0],
		CallDirection: parts[1],
		OperatorPhone: parts[2],
		ClientPhone:   clientPhone,
		CallDate:      fmt.Sprintf("%s-%s-%s", dateStr[0:4], dateStr[4:6], dateStr[6:8]),
		CallTime:      fmt.Sprintf("%s:%s:%s", timeStr[0:2], timeStr[2:4], timeStr[4:6]),
	}, nil
}

// CleanDialog strips transcription timecodes and normalises whitespace,
// dropping lines left empty by the cleanup.
func CleanDialog(text string) string {
	cleaned := timecodeRe.ReplaceAllString(text, "")
	var lines []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// DialogID derives a stable dialog identifier from the filename and the
// first 100 characters of the cleaned transcript.
func DialogID(filename, content string) string {
	head := []rune(content)
	if len(head) > 100 {
		head = head[:100]
	}
	sum := md5.Sum([]byte(filename + ":" + string(head)))
	return hex.EncodeToString(sum[:])
}

// ChatPairID derives a stable identifier for a chat-sourced QA pair from the
// first 100 characters of its question and answer. The monitor uses it for
// dedup across restarts.
func ChatPairID(question, answer string) string {
	q := []rune(question)
	if len(q) > 100 {
		q = q[:100]
	}
	a := []rune(answer)
	if len(a) > 100 {
		a = a[:100]
	}
	sum := md5.Sum([]byte("tgbot:" + string(q) + ":" + string(a)))
	return hex.EncodeToString(sum[:])
}
