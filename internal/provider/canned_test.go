package provider

import (
	"context"
	"strings"
	"testing"

	"fbmonitor/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hi there", IntentGreeting},
		{"hey!", IntentGreeting},
		{"Is this still available?", IntentAvailability},
		{"Hi, is it available?", IntentAvailability},
		{"How much for it?", IntentPrice},
		{"Would you take $40", IntentPrice},
		{"What color is it", IntentDefault},
		{"This is great", IntentDefault}, // "this" must not match "hi"
	}
	for _, tt := range tests {
		if got := Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestCanned_CompleteUsesProductHint(t *testing.T) {
	c := NewCanned(CannedReplies{})
	resp, err := c.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.PromptMessage{
		{Role: domain.RoleSystem, Content: "You sell things.\n" + ProductHintPrefix + "Mountain bike"},
		{Role: domain.RoleUser, Content: "still available?"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "Mountain bike") || resp.Provider != "canned" {
		t.Fatalf("unexpected reply %+v", resp)
	}
}

func TestCanned_CustomTemplateAndDefaultProduct(t *testing.T) {
	c := NewCanned(CannedReplies{Default: "Custom reply for {product}"})
	if got := c.Reply("???", ""); got != "Custom reply for the item" {
		t.Fatalf("unexpected reply %q", got)
	}
}
