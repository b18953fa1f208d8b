// Package i18n translates the strings of llm-translator's own interface:
// CLI messages, the web page and the desktop window. The text being
// translated by the LLM never goes through here.
//
// Catalogs are gettext .po files embedded from locales/ and read with gotext.
// Messages without a translation are shown in English.
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Layout: locales/<lang>/LC_MESSAGES/llm-translator.po
//
//go:embed all:locales
var locales embed.FS

const domain = "llm-translator"

var (
	po   *gotext.Locale
	lang = "en"
)

// Init loads the catalog for l ("ko", "ko_KR"). An empty l is taken from
// the locale environment. Call it before the first T or N.
func Init(l string) {
	if l == "" {
		l = detectLanguage()
	}
	lang = l

	po = gotext.NewLocaleFSWithPath(l, locales, "locales")
	po.AddDomain(domain)
	po.SetDomain(domain)
}

// Lang returns the base code of the active UI language, e.g. "ko" for
// "ko_KR". The web page uses it for <html lang>.
func Lang() string {
	base, _, _ := strings.Cut(strings.ReplaceAll(lang, "-", "_"), "_")
	return strings.ToLower(base)
}

// T returns the translation of msgid, or msgid itself.
func T(msgid string) string {
	if po == nil {
		return msgid
	}
	return po.Get(msgid)
}

// N picks the plural form for n.
func N(singular, plural string, n int) string {
	if po != nil {
		return po.GetN(singular, plural, n)
	}
	if n == 1 {
		return singular
	}
	return plural
}

// localeVars are consulted in gettext order. LANGUAGE may hold a
// colon-separated preference list.
var localeVars = []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"}

func detectLanguage() string {
	for _, name := range localeVars {
		for _, entry := range strings.Split(os.Getenv(name), ":") {
			if l := localeName(entry); l != "" {
				return l
			}
		}
	}
	return "en"
}

// localeName strips the codeset and modifier from a locale value
// ("ko_KR.UTF-8@euro" -> "ko_KR"). The C and POSIX locales yield "".
func localeName(v string) string {
	v, _, _ = strings.Cut(v, "@")
	v, _, _ = strings.Cut(v, ".")
	v = strings.TrimSpace(v)
	if v == "C" || v == "POSIX" {
		return ""
	}
	return v
}
