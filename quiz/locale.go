package quiz

import (
	"golang.org/x/text/language"
)

var supportedLocales = []language.Tag{
	language.English, // first entry is the fallback
	language.French,
	language.German,
	language.Spanish,
	language.Italian,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// DetectLocale picks a content locale from an explicit ?locale= value, then
// the Accept-Language header, falling back to English.
func DetectLocale(explicit, acceptLanguage string) string {
	var prefs []language.Tag
	if explicit != "" {
		if tag, err := language.Parse(explicit); err == nil {
			prefs = append(prefs, tag)
		}
	}
	if acceptLanguage != "" {
		if tags, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
			prefs = append(prefs, tags...)
		}
	}
	if len(prefs) == 0 {
		return DefaultLocale
	}

	_, index, confidence := localeMatcher.Match(prefs...)
	if confidence == language.No {
		return DefaultLocale
	}
	base, _ := supportedLocales[index].Base()
	return base.String()
}
