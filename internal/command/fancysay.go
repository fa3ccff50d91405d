package command

import (
	"strings"
	"unicode/utf8"
)

const mascot = `        \
         \
          (•ᴗ•)🎤`

// FancySay wraps text to the given column width and frames it in a speech
// bubble. It never panics: malformed UTF-8 is replaced and degenerate input
// degrades to an error string.
func FancySay(text string, width int) string {
	if width < 1 {
		width = 1
	}

	text = strings.ToValidUTF8(strings.TrimSpace(text), string(utf8.RuneError))
	if text == "" {
		return "There was nothing to say."
	}

	lines := wrap(text, width)

	longest := 0
	for _, line := range lines {
		if n := utf8.RuneCountInString(line); n > longest {
			longest = n
		}
	}

	var b strings.Builder
	b.WriteString(" ")
	b.WriteString(strings.Repeat("_", longest+2))
	b.WriteString("\n")

	for i, line := range lines {
		left, right := "|", "|"
		switch {
		case len(lines) == 1:
			left, right = "<", ">"
		case i == 0:
			left, right = "/", "\\"
		case i == len(lines)-1:
			left, right = "\\", "/"
		}
		pad := longest - utf8.RuneCountInString(line)
		b.WriteString(left)
		b.WriteString(" ")
		b.WriteString(line)
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(" ")
		b.WriteString(right)
		b.WriteString("\n")
	}

	b.WriteString(" ")
	b.WriteString(strings.Repeat("-", longest+2))
	b.WriteString("\n")
	b.WriteString(mascot)

	return b.String()
}

// wrap greedily wraps words at the given rune width. A word longer than the
// width is hard-split rather than overflowing the frame.
func wrap(text string, width int) []string {
	var lines []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if currentLen > 0 {
			lines = append(lines, current.String())
			current.Reset()
			currentLen = 0
		}
	}

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)

		for wordLen > width {
			flush()
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
			wordLen = utf8.RuneCountInString(word)
		}

		switch {
		case currentLen == 0:
			current.WriteString(word)
			currentLen = wordLen
		case currentLen+1+wordLen <= width:
			current.WriteString(" ")
			current.WriteString(word)
			currentLen += 1 + wordLen
		default:
			flush()
			current.WriteString(word)
			currentLen = wordLen
		}
	}
	flush()

	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}
