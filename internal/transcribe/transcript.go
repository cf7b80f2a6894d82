package transcribe

import (
	"strings"
)

// hallucinationPhrases are Whisper's favorite inventions on silence and
// music: credits-style sign-offs that appear in no actual dialogue.
var hallucinationPhrases = []string{
	"thank you for watching",
	"please subscribe",
	"like and subscribe",
}

// CleanTranscript strips Whisper hallucinations from raw transcript text:
// lines containing a known filler phrase are dropped and consecutive
// duplicate lines are collapsed to one. Everything else passes through
// untouched.
func CleanTranscript(raw string) string {
	lines := strings.Split(raw, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		if isHallucination(line) {
			continue
		}
		if len(cleaned) > 0 && line == cleaned[len(cleaned)-1] {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}

func isHallucination(line string) bool {
	lower := strings.ToLower(line)
	for _, phrase := range hallucinationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// WordCount counts whitespace-separated tokens. Japanese text without spaces
// counts lines as single words, which is crude but stable for progress
// tracking.
func WordCount(text string) int64 {
	return int64(len(strings.Fields(text)))
}
