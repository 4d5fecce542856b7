package locator

import (
	"strings"

	"fbmonitor/internal/domain"
)

var unreadClassHints = []string{"unread", "x1s688f", "xk50ysn"}

// IsUnreadChat classifies a chat-list row by its visual markers: bold
// text, an unread dot, known class names or an aria label.
func IsUnreadChat(row domain.ChatRow) bool {
	if row.FontWeight >= 600 {
		return true
	}
	if row.HasUnreadDot {
		return true
	}
	label := strings.ToLower(row.AriaLabel)
	if strings.Contains(label, "unread") && !strings.Contains(label, "mark as unread") {
		return true
	}
	classes := strings.ToLower(row.Classes)
	for _, hint := range unreadClassHints {
		if strings.Contains(classes, hint) {
			return true
		}
	}
	return false
}
