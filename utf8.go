///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - utf8.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
package main

import (
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/term"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	utf8SupportOnce sync.Once
	utf8Support     bool
	haveUTF8console bool
	utf8LocaleRe    = regexp.MustCompile(`(?i)utf.?8`)
)

///////////////////////////////////////////////////////////////////////////////////////////////////

func haveUTF8support() bool {
	utf8SupportOnce.Do(func() {
		switch {
		case os.Getenv("FLOXY_FORCE_UTF8") == "1":
			utf8Support = true // Undocumented: for debugging use.

		case os.Getenv("FLOXY_FORCE_NO_UTF8") == "1":
			utf8Support = false // Undocumented: for debugging use.

		case !term.IsTerminal(int(os.Stderr.Fd())):
			utf8Support = false

		default:
			utf8Support = isUTF8locale() || canOutputUTF8()
		}
	})

	return utf8Support
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func canOutputUTF8() bool {
	testStr := "┌─"

	fullStr := "\r" + testStr
	n, err := os.Stderr.WriteString(fullStr)

	erase := strings.Repeat("\b", utf8.RuneCountInString(testStr)) +
		strings.Repeat(" ", utf8.RuneCountInString(testStr)) + "\r"
	_, _ = os.Stderr.WriteString(erase)

	return err == nil && n == len(fullStr)
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func isUTF8locale() bool {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG", "TERM"} {
		val := os.Getenv(key)

		if val != "" && utf8LocaleRe.MatchString(val) {
			return true
		}
	}

	return false
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func emojiPrefix(emoji string) string {
	if haveUTF8console {
		return emoji + " "
	}

	return ""
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func errorPrefix() string    { return emojiPrefix("❌") } // Fatal
func boomPrefix() string     { return emojiPrefix("💥") } // Near-fatal
func warnPrefix() string     { return emojiPrefix("⚠️") } // Warning
func alertPrefix() string    { return emojiPrefix("🚨") } // Alert
func bellPrefix() string     { return emojiPrefix("🔔") } // Signal
func toolPrefix() string     { return emojiPrefix("🔧") } // Work
func greenDotPrefix() string { return emojiPrefix("🟢") } // Good
func blueDotPrefix() string  { return emojiPrefix("🔵") } // Validate
func relayPrefix() string    { return emojiPrefix("📡") } // Startup
func byePrefix() string      { return emojiPrefix("👋") } // Goodbye
func dbPrefix() string       { return emojiPrefix("💾") } // Database
func bugPrefix() string      { return emojiPrefix("🐛") } // (De)bug

///////////////////////////////////////////////////////////////////////////////////////////////////

// emojiStripperWriter keeps console prefixes out of log files.
type emojiStripperWriter struct {
	w io.Writer
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (e *emojiStripperWriter) Write(p []byte) (int, error) {
	stripped := stripEmoji(string(p))

	if _, err := e.w.Write([]byte(stripped)); err != nil {
		return 0, err
	}

	return len(p), nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F: // Emoticons
		return true

	case r >= 0x1F300 && r <= 0x1F5FF: // Misc symbols
		return true

	case r >= 0x1F680 && r <= 0x1F6FF: // Transport
		return true

	case r >= 0x2600 && r <= 0x26FF: // Misc symbols
		return true

	case r >= 0x2700 && r <= 0x27BF: // Dingbats
		return true

	case r >= 0xFE00 && r <= 0xFE0F: // Selectors
		return true

	case r >= 0x1F900 && r <= 0x1F9FF: // Supplemental
		return true

	case r >= 0x1F7E0 && r <= 0x1F7EB: // Geometric Shapes Extended
		return true

	default:
		return false
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func stripEmoji(s string) string {
	var b strings.Builder

	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		if !isEmojiRune(runes[i]) {
			b.WriteRune(runes[i])

			continue
		}

		for i+1 < len(runes) && isEmojiRune(runes[i+1]) {
			i++
		}

		if i+1 < len(runes) && runes[i+1] == ' ' {
			i++
		}
	}

	return b.String()
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
