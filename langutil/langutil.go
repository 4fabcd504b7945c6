// Package langutil implements C5: Arabic/English language detection,
// Arabic text normalization, and LLM-mediated translation. Grounded on
// original_source/utils/language_utils.py::detect_language and
// original_source/database/district_utils.py::normalize_city_name, with
// diacritic stripping and NFKC composition added per spec §4.5 (the
// original only folds letter variants, it does not strip diacritics).
package langutil

import (
	"context"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/abarwater/aqua-router/domain/conversation"
	"github.com/abarwater/aqua-router/domain/llm"
)

// Detect returns LanguageArabic or LanguageEnglish based on the ratio of
// Arabic-range codepoints to Latin letters; ties favor Arabic (spec §4.5).
func Detect(text string) conversation.Language {
	var arabicCount, latinCount int
	for _, r := range text {
		switch {
		case isArabicLetter(r):
			arabicCount++
		case unicode.IsLetter(r) && r < unicode.MaxASCII:
			latinCount++
		}
	}
	if latinCount > arabicCount {
		return conversation.LanguageEnglish
	}
	return conversation.LanguageArabic
}

func isArabicLetter(r rune) bool {
	return (r >= 0x0600 && r <= 0x06FF) || (r >= 0x0750 && r <= 0x077F) || (r >= 0xFB50 && r <= 0xFDFF) || (r >= 0xFE70 && r <= 0xFEFF)
}

var diacriticRanges = [][2]rune{
	{0x064B, 0x065F},
	{0x0670, 0x0670},
	{0x06D6, 0x06ED},
}

func isDiacritic(r rune) bool {
	for _, rg := range diacriticRanges {
		if r >= rg[0] && r <= rg[1] {
			return true
		}
	}
	return false
}

var foldTable = map[rune]rune{
	'أ': 'ا',
	'إ': 'ا',
	'آ': 'ا',
	'ى': 'ي',
	'ئ': 'ي',
	'ؤ': 'و',
	'ة': 'ه',
}

// NormalizeArabic NFKC-normalizes the input, strips diacritics and the lone
// hamza, folds alif/yeh/waw/teh-marbuta variants, collapses whitespace and
// NFKC-composes the result.
// Idempotent: NormalizeArabic(NormalizeArabic(s)) == NormalizeArabic(s)
// (spec §8 property 3). The first NFKC pass turns presentation forms into
// base letters before folding, so no foldable letter survives the first call.
func NormalizeArabic(text string) string {
	text = norm.NFKC.String(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 'ء' || isDiacritic(r) {
			continue
		}
		if folded, ok := foldTable[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	collapsed := strings.Join(strings.Fields(b.String()), " ")
	return norm.NFKC.String(collapsed)
}

var arabicWaterPrefixes = []string{"مياه", "موية", "مياة", "ميه"}
var englishWaterWords = []string{"Water", "WATER", "water"}

// NormalizeBrandTitle strips a leading Arabic water prefix and a leading,
// trailing, or standalone-middle English "Water" token, then applies
// NormalizeArabic — grounded on
// original_source/services/data_scraper.py::_clean_and_normalize_brand_name.
func NormalizeBrandTitle(title string) string {
	cleaned := strings.TrimSpace(title)
	if cleaned == "" {
		return cleaned
	}

	for _, prefix := range arabicWaterPrefixes {
		if strings.HasPrefix(cleaned, prefix+" ") {
			cleaned = strings.TrimSpace(cleaned[len(prefix):])
			break
		}
		if strings.HasPrefix(cleaned, prefix) && len(cleaned) > len(prefix) {
			next := cleaned[len(prefix)]
			if next == ' ' {
				cleaned = strings.TrimSpace(cleaned[len(prefix):])
				break
			}
		}
	}

	for _, word := range englishWaterWords {
		switch {
		case strings.HasPrefix(cleaned, word+" "):
			cleaned = strings.TrimSpace(cleaned[len(word):])
		case strings.HasSuffix(cleaned, " "+word):
			cleaned = strings.TrimSpace(cleaned[:len(cleaned)-len(word)])
		case strings.Contains(cleaned, " "+word+" "):
			cleaned = strings.TrimSpace(strings.Replace(cleaned, " "+word+" ", " ", 1))
		default:
			continue
		}
		break
	}

	return NormalizeArabic(cleaned)
}

// Translator is implemented by anything that can rephrase text into a
// target language via the chat LLM (used for classification of English
// text with no history, and for canned-reply rephrasing).
type Translator struct {
	Chat llm.ChatProvider
}

const translateSystemPrompt = `You translate short customer-service messages between Arabic and English. Reply with the translation only, no quotes, no commentary.`

// TranslateTo asks the LLM to translate text into target ("ar" or "en").
func (t *Translator) TranslateTo(ctx context.Context, text string, target conversation.Language) (string, error) {
	resp, err := t.Chat.Chat(ctx, llm.ChatRequest{
		SystemPrompt: translateSystemPrompt,
		UserText:     "Target language: " + string(target) + "\nText: " + text,
		Temperature:  llm.MaxTemperatureDeterministic,
		MaxTokens:    300,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
