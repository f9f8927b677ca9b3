// Package i18n provides localized user-facing messages for ledger error codes.
package i18n

import (
	"bytes"
	"strings"
	"sync"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

// BaseLocale is the locale used when a request names none or an unsupported one.
const BaseLocale = "en-US"

var supported = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
}

var (
	matcher = language.NewMatcher(supported)

	builderOnce sync.Once
	builder     *catalog.Builder

	catalogsMu sync.RWMutex
	catalogs   = map[string]*Catalog{}
)

// Catalog renders error messages for one locale.
type Catalog struct {
	locale  string
	printer *message.Printer
	known   map[Code]struct{}
}

// GetCatalog returns the catalog best matching locale.
// Unsupported locales fall back to en-US.
func GetCatalog(locale string) *Catalog {
	tag := matchLocale(locale)
	key := tag.String()
	if c, ok := lookupCatalog(key); ok {
		return c
	}
	known := make(map[Code]struct{}, len(enUS))
	for code := range enUS {
		known[code] = struct{}{}
	}
	built := &Catalog{
		locale:  key,
		printer: message.NewPrinter(tag, message.Catalog(messages())),
		known:   known,
	}
	return storeCatalogIfAbsent(key, built)
}

// Locale returns the locale of this catalog.
func (c *Catalog) Locale() string {
	return c.locale
}

// Format renders the message template with the given metadata.
// Falls back to the error code itself if no template is found.
func (c *Catalog) Format(code Code, metadata map[string]string) string {
	if _, ok := c.known[code]; !ok {
		return code
	}
	tmpl := c.printer.Sprintf(code)
	if metadata == nil {
		metadata = map[string]string{}
	}
	t, err := template.New("msg").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

func matchLocale(locale string) language.Tag {
	requested := strings.TrimSpace(locale)
	if requested == "" {
		return supported[0]
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return supported[0]
	}
	_, idx, confidence := matcher.Match(tag)
	if confidence == language.No {
		return supported[0]
	}
	return supported[idx]
}

func messages() *catalog.Builder {
	builderOnce.Do(func() {
		builder = catalog.NewBuilder(catalog.Fallback(supported[0]))
		for code, msg := range enUS {
			_ = builder.SetString(language.AmericanEnglish, code, msg)
		}
		for code, msg := range ptBR {
			_ = builder.SetString(language.BrazilianPortuguese, code, msg)
		}
	})
	return builder
}

func lookupCatalog(locale string) (*Catalog, bool) {
	catalogsMu.RLock()
	defer catalogsMu.RUnlock()
	cat, ok := catalogs[locale]
	return cat, ok
}

func storeCatalogIfAbsent(locale string, candidate *Catalog) *Catalog {
	catalogsMu.Lock()
	defer catalogsMu.Unlock()
	if existing, ok := catalogs[locale]; ok {
		return existing
	}
	catalogs[locale] = candidate
	return candidate
}
