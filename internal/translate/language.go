package translate

// speechCodes maps target-language display names to BCP-47 codes for
// speech synthesis voice selection.
var speechCodes = map[string]string{
	"English":    "en-US",
	"French":     "fr-FR",
	"German":     "de-DE",
	"Spanish":    "es-ES",
	"Italian":    "it-IT",
	"Portuguese": "pt-BR",
	"Dutch":      "nl-NL",
	"Russian":    "ru-RU",
	"Japanese":   "ja-JP",
	"Korean":     "ko-KR",
	"Chinese":    "zh-CN",
	"Arabic":     "ar-SA",
	"Hindi":      "hi-IN",
}

// SpeechCode returns the BCP-47 code for a target language display name,
// falling back to en-US for unknown languages.
func SpeechCode(displayName string) string {
	if code, ok := speechCodes[displayName]; ok {
		return code
	}
	return "en-US"
}

// VoiceFor builds a synthesis voice for a target language.
func VoiceFor(name, targetLanguage string) Voice {
	return Voice{Name: name, Language: SpeechCode(targetLanguage)}
}
