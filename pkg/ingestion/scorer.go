package ingestion

import (
	"regexp"
	"strings"
)

// injectionSignal is one detectable prompt-injection pattern. Only the name
// ends up in chunk metadata; the matched text never leaves the scorer.
type injectionSignal struct {
	name    string
	pattern *regexp.Regexp
	weight  float64
}

var injectionSignals = []injectionSignal{
	{"override_instructions", regexp.MustCompile(`(?i)(ignore|disregard|forget|olvida|ignora)\s+(all\s+|las\s+|tus\s+)?(previous|prior|above|anteriores|previas)?\s*(instructions|instrucciones|rules|reglas)`), 0.5},
	{"reveal_system_prompt", regexp.MustCompile(`(?i)(reveal|show|print|expose|revela|muestra)\s+(the\s+|el\s+|tu\s+)?(system\s+prompt|prompt\s+del\s+sistema|hidden\s+instructions)`), 0.5},
	{"role_reassignment", regexp.MustCompile(`(?i)(you\s+are\s+now|act\s+as|pretend\s+to\s+be|ahora\s+eres|actúa\s+como)`), 0.3},
	{"role_marker", regexp.MustCompile(`(?im)^\s*(system|assistant|user)\s*:`), 0.2},
	{"delimiter_spoof", regexp.MustCompile(`---\[(?:FIN )?S\d+\]---`), 0.4},
	{"jailbreak_marker", regexp.MustCompile(`(?i)(jailbreak|DAN\s+mode|developer\s+mode\s+enabled)`), 0.4},
	{"exfiltration", regexp.MustCompile(`(?i)(send|post|exfiltrate|envía)\s+.{0,40}(credentials|password|token|api[\s_-]?key|contraseña)`), 0.4},
}

// ScoreInjectionRisk computes a deterministic prompt-injection risk score in
// [0, 1] for a chunk of text, plus the names of the signals that fired.
func ScoreInjectionRisk(text string) (float64, []string) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}

	score := 0.0
	var flags []string
	for _, signal := range injectionSignals {
		if signal.pattern.MatchString(text) {
			score += signal.weight
			flags = append(flags, signal.name)
		}
	}
	if score > 1 {
		score = 1
	}
	return score, flags
}
