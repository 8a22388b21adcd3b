package agent

import (
	"regexp"
	"strings"
)

// Completion heuristics. The backend does not always set is_complete
// promptly, so once a stream goes idle the accumulated log text is
// scanned for a delimited solution block, falling back to
// terminal-sounding log lines. This is best-effort, not a protocol
// guarantee; do not strengthen it without confirming the backend's
// completion-flag reliability.

var (
	solutionRe = regexp.MustCompile(`(?s)<solution>(.*?)</solution>`)

	// Light structural normalization of the extracted body.
	excessNewlinesRe = regexp.MustCompile(`\n{3,}`)
	bulletRe         = regexp.MustCompile(`(?m)^(\s*)[*•]\s+`)
	headingRe        = regexp.MustCompile(`(?m)^(#{1,6})([^#\s])`)
)

// fallbackKeywords mark log lines that sound like a final answer.
var fallbackKeywords = []string{"solution", "answer", "conclusion", "final"}

// resolveFinalOutput derives the final output for a turn from the
// accumulated transcript and log lines. The boolean result reports
// whether a delimited solution block was found.
func resolveFinalOutput(transcript string, logs []string) (string, bool) {
	if body, ok := extractSolutionBlock(transcript); ok {
		return body, true
	}
	if line, ok := lastKeywordLine(logs); ok {
		return line, false
	}
	if line, ok := lastLine(logs); ok {
		return line, false
	}
	return "", false
}

// extractSolutionBlock returns the normalized contents of the last
// <solution> block in text, if any.
func extractSolutionBlock(text string) (string, bool) {
	matches := solutionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	body := matches[len(matches)-1][1]
	return normalizeSolution(body), true
}

func normalizeSolution(body string) string {
	body = strings.TrimSpace(body)
	body = excessNewlinesRe.ReplaceAllString(body, "\n\n")
	body = bulletRe.ReplaceAllString(body, "${1}- ")
	body = headingRe.ReplaceAllString(body, "$1 $2")
	return body
}

// lastKeywordLine returns the most recent log line containing any of
// the fallback keywords.
func lastKeywordLine(logs []string) (string, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		lines := strings.Split(logs[i], "\n")
		for j := len(lines) - 1; j >= 0; j-- {
			line := strings.TrimSpace(lines[j])
			if line == "" {
				continue
			}
			lower := strings.ToLower(line)
			for _, kw := range fallbackKeywords {
				if strings.Contains(lower, kw) {
					return line, true
				}
			}
		}
	}
	return "", false
}

// lastLine returns the most recent non-empty log line.
func lastLine(logs []string) (string, bool) {
	for i := len(logs) - 1; i >= 0; i-- {
		lines := strings.Split(logs[i], "\n")
		for j := len(lines) - 1; j >= 0; j-- {
			if line := strings.TrimSpace(lines[j]); line != "" {
				return line, true
			}
		}
	}
	return "", false
}
