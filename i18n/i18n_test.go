package i18n

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle(t *testing.T) *Bundle {
	t.Helper()
	b, err := Load(slog.Default())
	require.NoError(t, err)
	return b
}

func TestLoadBothLocales(t *testing.T) {
	b := testBundle(t)
	assert.Contains(t, b.translations, "FR")
	assert.Contains(t, b.translations, "EN")
}

func TestTranslate(t *testing.T) {
	b := testBundle(t)

	fr := b.T("charter.accepted", "FR", nil)
	en := b.T("charter.accepted", "EN", nil)
	assert.NotEqual(t, fr, en)
	assert.NotEqual(t, "charter.accepted", fr)
}

func TestTranslateVars(t *testing.T) {
	b := testBundle(t)
	got := b.T("language.changed", "EN", Vars{"language": "EN"})
	assert.Contains(t, got, "EN")
	assert.NotContains(t, got, "{language}")
}

func TestUnknownLanguageFallsBackToFrench(t *testing.T) {
	b := testBundle(t)
	assert.Equal(t, b.T("charter.accepted", "FR", nil), b.T("charter.accepted", "DE", nil))
}

func TestMissingKeyReturnsKey(t *testing.T) {
	b := testBundle(t)
	assert.Equal(t, "no.such.key", b.T("no.such.key", "FR", nil))
}

func TestEveryFrenchKeyHasEnglish(t *testing.T) {
	b := testBundle(t)
	var walk func(prefix string, tree map[string]any)
	walk = func(prefix string, tree map[string]any) {
		for k, v := range tree {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			switch node := v.(type) {
			case map[string]any:
				walk(key, node)
			case string:
				assert.NotEqual(t, key, b.T(key, "EN", nil), "missing EN translation for %s", key)
			}
		}
	}
	walk("", b.translations["FR"])
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"fr":       "FR",
		"FR":       "FR",
		"français": "FR",
		"en":       "EN",
		"English":  "EN",
		"en-US":    "EN",
		"de":       "FR", // unsupported falls back
		"garbage":  "FR",
		"":         "FR",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}
