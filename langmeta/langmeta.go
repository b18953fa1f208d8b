// Package langmeta provides the language registry used to validate source and
// target languages, render them in prompts and menus, and detect the language
// of a source text.
package langmeta

import (
	"sort"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Auto is the source language value that asks for detection.
const Auto = "auto"

// Meta describes one language.
type Meta struct {
	// English is the name used in prompts ("Korean").
	English string
	// Name is the native name shown in menus ("한국어").
	Name string
	Flag string
}

// Base lists the languages offered first in every UI, in display order.
var Base = []string{"en", "ko", "ja", "zh", "es", "fr", "de", "ru"}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve() via normalization and base fallback.
var Registry = map[string]Meta{
	"af":    {English: "Afrikaans", Name: "Afrikaans", Flag: "🇿🇦"},
	"ar":    {English: "Arabic", Name: "العربية", Flag: "🇸🇦"},
	"bg":    {English: "Bulgarian", Name: "Български", Flag: "🇧🇬"},
	"bn":    {English: "Bengali", Name: "বাংলা", Flag: "🇧🇩"},
	"ca":    {English: "Catalan", Name: "Català", Flag: "🇪🇸"},
	"cs":    {English: "Czech", Name: "Čeština", Flag: "🇨🇿"},
	"da":    {English: "Danish", Name: "Dansk", Flag: "🇩🇰"},
	"de":    {English: "German", Name: "Deutsch", Flag: "🇩🇪"},
	"el":    {English: "Greek", Name: "Ελληνικά", Flag: "🇬🇷"},
	"en":    {English: "English", Name: "English", Flag: "🇺🇸"},
	"en-GB": {English: "English (UK)", Name: "English (UK)", Flag: "🇬🇧"},
	"en-US": {English: "English (US)", Name: "English (US)", Flag: "🇺🇸"},
	"es":    {English: "Spanish", Name: "Español", Flag: "🇪🇸"},
	"es-MX": {English: "Spanish (Mexico)", Name: "Español (México)", Flag: "🇲🇽"},
	"et":    {English: "Estonian", Name: "Eesti", Flag: "🇪🇪"},
	"fa":    {English: "Persian", Name: "فارسی", Flag: "🇮🇷"},
	"fi":    {English: "Finnish", Name: "Suomi", Flag: "🇫🇮"},
	"fr":    {English: "French", Name: "Français", Flag: "🇫🇷"},
	"fr-CA": {English: "French (Canada)", Name: "Français (Canada)", Flag: "🇨🇦"},
	"he":    {English: "Hebrew", Name: "עברית", Flag: "🇮🇱"},
	"hi":    {English: "Hindi", Name: "हिन्दी", Flag: "🇮🇳"},
	"hr":    {English: "Croatian", Name: "Hrvatski", Flag: "🇭🇷"},
	"hu":    {English: "Hungarian", Name: "Magyar", Flag: "🇭🇺"},
	"id":    {English: "Indonesian", Name: "Bahasa Indonesia", Flag: "🇮🇩"},
	"it":    {English: "Italian", Name: "Italiano", Flag: "🇮🇹"},
	"ja":    {English: "Japanese", Name: "日本語", Flag: "🇯🇵"},
	"ko":    {English: "Korean", Name: "한국어", Flag: "🇰🇷"},
	"lt":    {English: "Lithuanian", Name: "Lietuvių", Flag: "🇱🇹"},
	"lv":    {English: "Latvian", Name: "Latviešu", Flag: "🇱🇻"},
	"ms":    {English: "Malay", Name: "Bahasa Melayu", Flag: "🇲🇾"},
	"nb":    {English: "Norwegian Bokmål", Name: "Norsk bokmål", Flag: "🇳🇴"},
	"nl":    {English: "Dutch", Name: "Nederlands", Flag: "🇳🇱"},
	"pl":    {English: "Polish", Name: "Polski", Flag: "🇵🇱"},
	"pt":    {English: "Portuguese", Name: "Português", Flag: "🇵🇹"},
	"pt-BR": {English: "Portuguese (Brazil)", Name: "Português (Brasil)", Flag: "🇧🇷"},
	"ro":    {English: "Romanian", Name: "Română", Flag: "🇷🇴"},
	"ru":    {English: "Russian", Name: "Русский", Flag: "🇷🇺"},
	"sk":    {English: "Slovak", Name: "Slovenčina", Flag: "🇸🇰"},
	"sl":    {English: "Slovenian", Name: "Slovenščina", Flag: "🇸🇮"},
	"sr":    {English: "Serbian", Name: "Српски", Flag: "🇷🇸"},
	"sv":    {English: "Swedish", Name: "Svenska", Flag: "🇸🇪"},
	"sw":    {English: "Swahili", Name: "Kiswahili", Flag: "🇹🇿"},
	"ta":    {English: "Tamil", Name: "தமிழ்", Flag: "🇮🇳"},
	"th":    {English: "Thai", Name: "ไทย", Flag: "🇹🇭"},
	"tl":    {English: "Tagalog", Name: "Tagalog", Flag: "🇵🇭"},
	"tr":    {English: "Turkish", Name: "Türkçe", Flag: "🇹🇷"},
	"uk":    {English: "Ukrainian", Name: "Українська", Flag: "🇺🇦"},
	"ur":    {English: "Urdu", Name: "اردو", Flag: "🇵🇰"},
	"vi":    {English: "Vietnamese", Name: "Tiếng Việt", Flag: "🇻🇳"},
	"zh":    {English: "Chinese", Name: "中文", Flag: "🇨🇳"},
	"zh-CN": {English: "Simplified Chinese", Name: "简体中文", Flag: "🇨🇳"},
	"zh-TW": {English: "Traditional Chinese", Name: "繁體中文", Flag: "🇹🇼"},
}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Lookup resolves a language code ("ko", "ko_KR", "pt-br") or an English
// name ("Korean", case-insensitive) to its registry code.
func Lookup(lang string) (string, Meta, bool) {
	if m, ok := Registry[lang]; ok {
		return lang, m, true
	}
	normalized := canonicalize(lang)
	if m, ok := Registry[normalized]; ok {
		return normalized, m, true
	}
	if base, _, found := strings.Cut(normalized, "-"); found {
		if m, ok := Registry[base]; ok {
			return base, m, true
		}
	}
	name := strings.TrimSpace(lang)
	for code, m := range Registry {
		if strings.EqualFold(m.English, name) {
			return code, m, true
		}
	}
	return "", Meta{}, false
}

// Resolve returns best-effort language metadata for language codes,
// supporting variants like pt_BR, pt-BR, and locale fallbacks.
func Resolve(lang string) Meta {
	if _, m, ok := Lookup(lang); ok {
		return m
	}
	return Meta{English: lang, Name: lang}
}

// IsAuto reports whether lang asks for source detection.
func IsAuto(lang string) bool {
	l := strings.ToLower(strings.TrimSpace(lang))
	return l == "" || l == Auto
}

// Codes returns the base languages followed by the rest of the registry in
// alphabetical order.
func Codes() []string {
	seen := make(map[string]bool, len(Base))
	codes := make([]string, 0, len(Registry))
	for _, c := range Base {
		seen[c] = true
		codes = append(codes, c)
	}
	var rest []string
	for c := range Registry {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	return append(codes, rest...)
}

// Label renders a language for menus: "🇰🇷 Korean (한국어)".
func Label(code string) string {
	m := Resolve(code)
	label := m.English
	if m.Name != "" && m.Name != m.English {
		label += " (" + m.Name + ")"
	}
	if m.Flag != "" {
		label = m.Flag + " " + label
	}
	return label
}

// Detect guesses the language of text. It reports false when the detector is
// not confident or the language is not in the registry.
func Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "", false
	}
	code := info.Lang.Iso6391()
	if _, ok := Registry[code]; !ok {
		return "", false
	}
	return code, true
}
