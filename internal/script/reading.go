package script

import (
	"regexp"
	"strings"
)

// rubyPattern matches inline reading markup of the form base((reading)).
// The base run is the kanji/latin/digit run immediately before the markup;
// kana particles stay outside the ruby.
var rubyPattern = regexp.MustCompile(`([\p{Han}A-Za-z0-9]+)\(\(([^)]+)\)\)`)

// ParseReadingMarkup splits a line's text into the display form (shown in
// subtitles) and the synthesis form (sent to the TTS engine).
//
// In "ruby" mode, base((reading)) keeps base on screen and speaks reading:
//
//	"豆腐((とうふ))を食べる" -> display "豆腐を食べる", tts "とうふを食べる"
//
// In "none" mode the text passes through untouched, so
// ParseReadingMarkup(s, "none") == (s, s).
func ParseReadingMarkup(text, mode string) (display, tts string) {
	if mode == "none" || !strings.Contains(text, "((") {
		return text, text
	}

	display = rubyPattern.ReplaceAllString(text, "$1")
	tts = rubyPattern.ReplaceAllString(text, "$2")
	return display, tts
}
