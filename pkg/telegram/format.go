package telegram

import (
	"html"
	"unicode/utf16"
)

// Escape makes text safe for HTML parse mode
func Escape(text string) string {
	return html.EscapeString(text)
}

// Bold wraps escaped text in <b>
func Bold(text string) string {
	return "<b>" + Escape(text) + "</b>"
}

// Code wraps escaped text in <code>
func Code(text string) string {
	return "<code>" + Escape(text) + "</code>"
}

// UTF16Len is the length of s as Telegram counts entity offsets
func UTF16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// BoldEntity marks the whole of text bold
func BoldEntity(text string) MessageEntity {
	return MessageEntity{Type: "bold", Offset: 0, Length: UTF16Len(text)}
}
