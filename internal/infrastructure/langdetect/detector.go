package langdetect

import "strings"

// Detector identifies the dominant language of a text by Unicode
// script counting, with a stopword vote to split the Latin-script
// languages apart. It never fails: unknown inputs come back with zero
// confidence so the caller can fall back to its default.
type Detector struct{}

func New() *Detector { return &Detector{} }

// sampleRunes bounds detection cost on large documents.
const sampleRunes = 1000

type scriptRange struct {
	lo, hi   rune
	language string
}

// Each range maps onto the most common language written in that
// script; Devanagari defaults to Hindi.
var scriptRanges = []scriptRange{
	{0x0900, 0x097F, "hi"}, // Devanagari
	{0x0980, 0x09FF, "bn"}, // Bengali
	{0x0A00, 0x0A7F, "pa"}, // Gurmukhi
	{0x0A80, 0x0AFF, "gu"}, // Gujarati
	{0x0B80, 0x0BFF, "ta"}, // Tamil
	{0x0C00, 0x0C7F, "te"}, // Telugu
	{0x0C80, 0x0CFF, "kn"}, // Kannada
	{0x0D00, 0x0D7F, "ml"}, // Malayalam
	{0x0600, 0x06FF, "ur"}, // Arabic block, Urdu in this corpus
	{0x0400, 0x04FF, "ru"}, // Cyrillic
	{0x3040, 0x309F, "ja"}, // Hiragana
	{0x30A0, 0x30FF, "ja"}, // Katakana
	{0xAC00, 0xD7AF, "ko"}, // Hangul syllables
	{0x4E00, 0x9FFF, "zh"}, // CJK unified ideographs
}

var latinStopwords = map[string][]string{
	"en": {"the", "and", "of", "to", "is", "in", "that", "what", "which", "for", "with", "how"},
	"es": {"el", "la", "los", "las", "de", "que", "es", "en", "una", "por", "como", "para"},
	"fr": {"le", "la", "les", "des", "est", "que", "dans", "une", "pour", "avec", "quel", "quelle"},
	"de": {"der", "die", "das", "und", "ist", "von", "mit", "ein", "eine", "nicht", "was", "wie"},
}

func (d *Detector) Detect(text string) (string, float64) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", 0
	}

	counts := make(map[string]int)
	latin := 0
	total := 0
	seen := 0
	for _, r := range text {
		if seen >= sampleRunes {
			break
		}
		seen++
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') ||
			(r >= 0x00C0 && r <= 0x024F) { // Latin-1 supplement and extensions
			latin++
			total++
			continue
		}
		for _, sr := range scriptRanges {
			if r >= sr.lo && r <= sr.hi {
				counts[sr.language]++
				total++
				break
			}
		}
	}
	if total == 0 {
		return "", 0
	}

	bestLang := ""
	bestCount := 0
	for lang, n := range counts {
		if n > bestCount || (n == bestCount && lang < bestLang) {
			bestLang, bestCount = lang, n
		}
	}
	if latin > bestCount {
		return detectLatinLanguage(text), float64(latin) / float64(total)
	}
	return bestLang, float64(bestCount) / float64(total)
}

// detectLatinLanguage votes with per-language stopword lists; English
// wins ties and token-free input.
func detectLatinLanguage(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return "en"
	}

	present := make(map[string]struct{}, len(words))
	for _, w := range words {
		present[strings.Trim(w, ".,;:!?()\"'«»¿¡")] = struct{}{}
	}

	best := "en"
	bestVotes := 0
	for _, lang := range []string{"en", "es", "fr", "de"} {
		votes := 0
		for _, stop := range latinStopwords[lang] {
			if _, ok := present[stop]; ok {
				votes++
			}
		}
		if votes > bestVotes {
			best, bestVotes = lang, votes
		}
	}
	return best
}
