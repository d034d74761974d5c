package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLanguage(t *testing.T) {
	testCases := []struct {
		tag      string
		expected Language
	}{
		{"", LanguageTSX},
		{"typescript+jsx", LanguageTSX},
		{"TSX", LanguageTSX},
		{"ts", LanguageTypeScript},
		{"jsx", LanguageJSX},
		{"javascript", LanguageJavaScript},
	}

	for _, tc := range testCases {
		t.Run(tc.tag, func(t *testing.T) {
			lang, err := ParseLanguage(tc.tag)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, lang)
		})
	}

	_, err := ParseLanguage("coffeescript")
	assert.Error(t, err)
}

func TestLanguageForFile(t *testing.T) {
	lang, ok := LanguageForFile("src/App.tsx")
	assert.True(t, ok)
	assert.Equal(t, LanguageTSX, lang)

	lang, ok = LanguageForFile("main.mjs")
	assert.True(t, ok)
	assert.Equal(t, LanguageJavaScript, lang)

	_, ok = LanguageForFile("README.md")
	assert.False(t, ok)
}

func TestSourceDocumentEmpty(t *testing.T) {
	assert.True(t, SourceDocument{}.Empty())
	assert.True(t, SourceDocument{Source: " \n\t"}.Empty())
	assert.False(t, SourceDocument{Source: "<div />"}.Empty())
}

func TestCompileResultVariants(t *testing.T) {
	ok := Success(3, "code")
	assert.True(t, ok.OK())
	assert.Equal(t, RequestID(3), ok.ID)

	failed := Failure(4, Diagnostic{Message: "boom"})
	assert.False(t, failed.OK())
	assert.Equal(t, "boom", failed.Diagnostic.Message)
}

func TestDiagnosticString(t *testing.T) {
	raw := Diagnostic{Message: "something odd"}
	assert.Equal(t, "something odd", raw.String())

	structured := Diagnostic{
		Message:     "userCode.tsx: Unexpected \";\" (1:10)",
		File:        "userCode.tsx",
		Description: "Unexpected \";\"",
		Line:        1,
		Column:      10,
		Structured:  true,
	}
	assert.Equal(t, "userCode.tsx:1:10: Unexpected \";\"", structured.String())
}

func TestLanguageAlias(t *testing.T) {
	for _, lang := range Languages() {
		parsed, err := ParseLanguage(lang.Alias())
		require.NoError(t, err)
		assert.Equal(t, lang, parsed)
	}
	assert.Equal(t, "ruby", Language("ruby").Alias())
}
