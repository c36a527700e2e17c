package utils

import (
	"fmt"
	"strings"
	"time"
)

// MessageType selects the color of a decorated message.
type MessageType int

// The message types used across the CLI.
const (
	DefaultMessage MessageType = iota
	SuccessMessage
	ErrorMessage
	StatusMessage
)

// Terminal colors of the message types.
const (
	DefaultColor = "\x1b[0m"
	StatusColor  = "\x1b[36m"
	SuccessColor = "\x1b[32m"
	ErrorColor   = "\x1b[31m"
)

var colors = map[MessageType]string{
	DefaultMessage: DefaultColor,
	SuccessMessage: SuccessColor,
	ErrorMessage:   ErrorColor,
	StatusMessage:  StatusColor,
}

// DecorateText colors s by its message type. Unknown types are returned as is.
func DecorateText(s string, msgType MessageType) string {
	c, ok := colors[msgType]
	if !ok {
		return s
	}
	return c + s + DefaultColor
}

// StatusLine prefixes msg with the colored label, e.g. "⚡ FACEFINDER is detecting...".
func StatusLine(label, msg string) string {
	return DecorateText(label, StatusMessage) + " " + DecorateText(msg, DefaultMessage)
}

// FormatTime formats d as days, hours, minutes and seconds, leaving out the leading zero units.
func FormatTime(d time.Duration) string {
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.2fs", secs)
	}

	total := int64(secs)
	frac := secs - float64(total)
	units := []struct {
		n      int64
		suffix string
	}{
		{total / 86400, "d"},
		{total % 86400 / 3600, "h"},
		{total % 3600 / 60, "m"},
	}

	var parts []string
	for _, u := range units {
		if u.n == 0 && len(parts) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
	}
	parts = append(parts, fmt.Sprintf("%.2fs", float64(total%60)+frac))
	return strings.Join(parts, " ")
}
