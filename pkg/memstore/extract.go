package memstore

import (
	"strings"
	"unicode"
)

// sentenceStarters are capitalized words that routinely open sentences or
// clauses and should never become entities on their own.
var sentenceStarters = map[string]struct{}{
	"I": {}, "A": {}, "An": {}, "The": {}, "My": {}, "Your": {}, "His": {},
	"Her": {}, "Their": {}, "Our": {}, "Its": {}, "This": {}, "That": {},
	"These": {}, "Those": {}, "What": {}, "Who": {}, "Whom": {}, "Where": {},
	"When": {}, "Why": {}, "How": {}, "Do": {}, "Does": {}, "Did": {},
	"Is": {}, "Are": {}, "Was": {}, "Were": {}, "It": {}, "He": {}, "She": {},
	"They": {}, "We": {}, "You": {}, "If": {}, "In": {}, "On": {}, "At": {},
	"And": {}, "But": {}, "Or": {}, "So": {}, "No": {}, "Yes": {}, "Not": {},
	"Hello": {}, "Hi": {}, "Hey": {}, "Please": {}, "Thanks": {}, "Thank": {},
	"OK": {}, "Okay": {}, "AI": {},
}

// ExtractEntityNames derives entity names from an episode body. Two signals
// are used: speaker labels ("Sam: hello") and runs of capitalized words in
// free text ("Sam started a chat."). Names are returned in order of first
// appearance, deduplicated case-insensitively.
func ExtractEntityNames(body string) []string {
	var names []string
	seen := make(map[string]struct{})

	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	for _, line := range strings.Split(body, "\n") {
		if label, ok := speakerLabel(line); ok {
			add(label)
		}
	}

	for _, run := range capitalizedRuns(body) {
		add(run)
	}

	return names
}

// speakerLabel returns the name before a leading "Name: message" colon, if
// the prefix plausibly is one.
func speakerLabel(line string) (string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 || idx > 40 {
		return "", false
	}

	label := strings.TrimSpace(line[:idx])
	if label == "" {
		return "", false
	}

	words := strings.Fields(label)
	if len(words) > 3 {
		return "", false
	}

	runes := []rune(label)
	if !unicode.IsUpper(runes[0]) {
		return "", false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return "", false
		}
	}

	return label, true
}

// capitalizedRuns finds consecutive capitalized words in the body. Sentence
// starters break runs so "The Sam" never forms.
func capitalizedRuns(body string) []string {
	var runs []string

	tokens := strings.FieldsFunc(body, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})

	var run []string
	flush := func() {
		if len(run) > 0 {
			runs = append(runs, strings.Join(run, " "))
		}
		run = nil
	}

	for _, tok := range tokens {
		// Sentence starters break runs and never join one.
		if isSentenceStarter(tok) || !isCapitalized(tok) {
			flush()
			continue
		}
		run = append(run, tok)
	}
	flush()

	return runs
}

func isSentenceStarter(word string) bool {
	// "What's" counts the same as "What".
	word = strings.TrimSuffix(word, "'s")
	_, ok := sentenceStarters[word]
	return ok
}

func isCapitalized(word string) bool {
	runes := []rune(word)
	if len(runes) == 0 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes[1:] {
		if !unicode.IsLetter(r) && r != '\'' {
			return false
		}
	}
	return true
}
