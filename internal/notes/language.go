package notes

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the BCP 47 tag of the dominant language of text,
// or "" when text is blank or the language has no two-letter code.
func DetectLanguage(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	code := whatlanggo.DetectLang(text).Iso6391()
	if code == "" {
		return ""
	}

	tag, err := language.Parse(code)
	if err != nil {
		return ""
	}
	return tag.String()
}
