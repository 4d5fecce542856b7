package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"fbmonitor/internal/domain"
)

var threadIDPattern = regexp.MustCompile(`/(?:marketplace/)?t/(\d+)`)

// threadDataKeys are row data attributes that carry a thread id.
var threadDataKeys = []string{"threadId", "threadid", "conversationId", "id"}

// IDFromURL extracts the numeric thread id from a messenger or Marketplace
// inbox URL.
func IDFromURL(u string) (string, bool) {
	m := threadIDPattern.FindStringSubmatch(u)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HashID derives a stable id from the user name and product title.
func HashID(userName, product string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(userName)) + "|" + strings.ToLower(strings.TrimSpace(product))))
	return "fb_" + hex.EncodeToString(sum[:6])
}

// IsHashID reports whether id came from HashID rather than the platform.
func IsHashID(id string) bool {
	return strings.HasPrefix(id, "fb_")
}

// ChatID picks the most stable id available for a row: the thread id in
// its link, then a thread data attribute, then a hash of user and product.
func ChatID(row domain.ChatRow, userName, product string) string {
	if id, ok := IDFromURL(row.Href); ok {
		return id
	}
	for _, key := range threadDataKeys {
		if v := strings.TrimSpace(row.Data[key]); v != "" {
			return v
		}
	}
	return HashID(userName, product)
}

// rowInfo is what a chat-list row says about its conversation.
type rowInfo struct {
	UserName  string
	Product   string
	TimeLabel string
}

// parseRow reads the visible lines of a chat-list row. Marketplace rows
// render "Name · Product" on the first line; the newest-message line ends
// in "· 3m".
func parseRow(row domain.ChatRow) rowInfo {
	lines := row.Lines
	if len(lines) == 0 && row.Text != "" {
		lines = strings.Split(row.Text, "\n")
	}

	var info rowInfo
	var cleaned []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			cleaned = append(cleaned, l)
		}
	}
	if len(cleaned) == 0 {
		return info
	}

	first := splitDot(cleaned[0])
	info.UserName = first[0]
	if len(first) > 1 {
		info.Product = strings.Join(first[1:], " · ")
	}

	for i := len(cleaned) - 1; i >= 0; i-- {
		parts := splitDot(cleaned[i])
		last := parts[len(parts)-1]
		if IsRelativeTime(last) {
			info.TimeLabel = last
			break
		}
	}
	return info
}

func splitDot(s string) []string {
	raw := strings.Split(s, "·")
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{""}
	}
	return parts
}
