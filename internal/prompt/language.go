package prompt

var languageNames = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"ta": "Tamil",
	"te": "Telugu",
	"kn": "Kannada",
	"bn": "Bengali",
	"pa": "Punjabi",
}

// LanguageName returns the display name of a language code. Unknown codes
// are returned unchanged.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	if code == "" {
		return languageNames["en"]
	}
	return code
}
