// Package highlight renders source text as ANSI-colored terminal output
// via chroma. Used by `replay` for fenced code blocks in persisted
// assistant messages.
package highlight

import (
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlight colorizes text for the given chroma language and theme. An
// unknown language or any tokenizer/formatter failure returns the text
// unchanged; replay output degrades to plain text rather than erroring.
// bgHex ("#rrggbb", usually from ThemeBg) is re-applied after every ANSI
// reset, because the terminal16m formatter drops the theme background on
// tokens that inherit it and every \x1b[0m reset would otherwise clear it
// mid-block.
func Highlight(text, language, theme, bgHex string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		return text
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, text)
	if err != nil {
		return text
	}
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, styles.Get(theme), iterator); err != nil {
		return text
	}

	out := strings.TrimRight(buf.String(), "\n")
	if bg := bgEscape(bgHex); bg != "" {
		out = bg + strings.ReplaceAll(out, "\x1b[0m", "\x1b[0m"+bg)
	}
	return out
}

// ThemeBg returns a chroma theme's background as "#rrggbb", or "" when the
// theme sets none.
func ThemeBg(theme string) string {
	style := styles.Get(theme)
	if style == nil {
		return ""
	}
	bg := style.Get(chroma.Background).Background
	if !bg.IsSet() {
		return ""
	}
	return bg.String()
}

// bgEscape converts "#rrggbb" to a 24-bit background escape sequence.
func bgEscape(hex string) string {
	if len(hex) != 7 || hex[0] != '#' {
		return ""
	}
	var r, g, b int
	if _, err := fmt.Sscanf(hex[1:], "%02x%02x%02x", &r, &g, &b); err != nil {
		return ""
	}
	return fmt.Sprintf("\x1b[48;2;%d;%d;%dm", r, g, b)
}
