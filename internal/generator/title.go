package generator

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTitleWords = 7

var titleCaser = cases.Title(language.English)

// deriveTitle builds a display title from the opening words of the prompt.
// "a landing page for my coffee shop" becomes "A Landing Page For My Coffee
// Shop". Prompts that are all punctuation fall back to a fixed title.
func deriveTitle(prompt string) string {
	fields := strings.FieldsFunc(prompt, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(fields) > maxTitleWords {
		fields = fields[:maxTitleWords]
	}
	title := titleCaser.String(strings.Join(fields, " "))
	if title == "" {
		return "Untitled Site"
	}
	return title
}
