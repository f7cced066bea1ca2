// Package i18n serves the bot's FR/EN message catalog.
//
// Locale files are embedded JSON with nested keys; messages are addressed by
// dotted paths ("charter.accepted") and may contain {variable} placeholders.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFiles embed.FS

const DefaultLanguage = "FR"

var supported = []language.Tag{
	language.French, // FR is the default
	language.English,
}

var matcher = language.NewMatcher(supported)

// Vars holds placeholder substitutions for a message.
type Vars map[string]string

// Bundle is a loaded message catalog.
type Bundle struct {
	translations map[string]map[string]any
	logger       *slog.Logger
}

// Load parses every embedded locale file.
func Load(logger *slog.Logger) (*Bundle, error) {
	b := &Bundle{
		translations: make(map[string]map[string]any),
		logger:       logger,
	}

	entries, err := localeFiles.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded locales: %w", err)
	}
	for _, e := range entries {
		lang := strings.ToUpper(strings.TrimSuffix(e.Name(), ".json"))
		raw, err := localeFiles.ReadFile("locales/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read locale %s: %w", e.Name(), err)
		}
		var tree map[string]any
		if err := json.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("failed to parse locale %s: %w", e.Name(), err)
		}
		b.translations[lang] = tree
	}
	return b, nil
}

// Normalize maps arbitrary user input ("fr", "en-US", "english") to a
// supported language code, falling back to FR.
func Normalize(lang string) string {
	switch strings.ToUpper(strings.TrimSpace(lang)) {
	case "FR", "FRENCH", "FRANCAIS", "FRANÇAIS":
		return "FR"
	case "EN", "ENGLISH", "ANGLAIS":
		return "EN"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return DefaultLanguage
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLanguage
	}
	if supported[idx] == language.English {
		return "EN"
	}
	return "FR"
}

// T returns the message for key in lang, substituting vars.
// Missing keys fall back to the key itself so a broken catalog never
// silences a reply.
func (b *Bundle) T(key, lang string, vars Vars) string {
	lang = strings.ToUpper(lang)
	tree, ok := b.translations[lang]
	if !ok {
		tree = b.translations[DefaultLanguage]
	}

	value := lookup(tree, strings.Split(key, "."))
	if value == "" {
		if b.logger != nil {
			b.logger.Warn("missing translation key", slog.String("key", key), slog.String("lang", lang))
		}
		return key
	}

	for name, v := range vars {
		value = strings.ReplaceAll(value, "{"+name+"}", v)
	}
	return value
}

func lookup(tree map[string]any, path []string) string {
	var node any = tree
	for _, p := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return ""
		}
		node = m[p]
	}
	s, _ := node.(string)
	return s
}
