package chat

import (
	"regexp"
	"strings"

	"fbmonitor/internal/domain"
)

// SelfSender is the sender name recorded for our own messages.
const SelfSender = "You"

var systemPhrases = []string{
	"you started this chat",
	"you are now connected",
	"started this chat",
	"view buyer profile",
	"view seller profile",
	"seen by",
	"delivered",
	"this message was unsent",
	"you can now message",
}

var dateLikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(today|yesterday)( at \d{1,2}:\d{2}( ?[ap]m)?)?$`),
	regexp.MustCompile(`(?i)^(mon|tue|wed|thu|fri|sat|sun)[a-z]* \d{1,2}:\d{2}( ?[ap]m)?$`),
	regexp.MustCompile(`^\d{1,2}:\d{2}( ?[AaPp][Mm])?$`),
	regexp.MustCompile(`(?i)^[a-z]{3,9} \d{1,2}, \d{4}(,? (at )?\d{1,2}:\d{2}( ?[ap]m)?)?$`),
	regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{2,4}`),
}

// IsSystemMessage reports whether text looks like a divider or platform
// notice rather than something a person typed. The patterns are
// best-effort and only applied when system filtering is enabled.
func IsSystemMessage(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	for _, p := range systemPhrases {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	for _, re := range dateLikePatterns {
		if re.MatchString(strings.TrimSpace(text)) {
			return true
		}
	}
	return false
}

// classifyRow turns a rendered bubble into a Message. Right-aligned or
// explicitly outgoing bubbles are ours.
func classifyRow(row domain.MessageRow, otherParty string) (domain.Message, bool) {
	content := strings.TrimSpace(row.Text)
	if content == "" {
		return domain.Message{}, false
	}

	label := strings.ToLower(row.AriaLabel)
	mine := row.OutgoingTag || row.AlignRight || strings.HasPrefix(label, "you sent") || strings.HasPrefix(label, "you:")

	sender := SelfSender
	if !mine {
		sender = strings.TrimSpace(row.Author)
		if sender == "" {
			sender = otherParty
		}
		if sender == "" {
			sender = "Unknown"
		}
	}

	return domain.Message{
		Content:     content,
		Sender:      sender,
		IsSentByYou: mine,
		Timestamp:   row.Timestamp,
	}, true
}
