package provider

import (
	"context"
	"strings"

	"fbmonitor/internal/domain"
)

// Canned answers from a few keyword-matched templates. It never fails and
// sits at the end of the failover chain.
type Canned struct {
	replies CannedReplies
}

// CannedReplies holds the template for each intent. {product} is replaced
// with the listing title when one is known.
type CannedReplies struct {
	Greeting     string `json:"greeting"`
	Price        string `json:"price"`
	Availability string `json:"availability"`
	Default      string `json:"default"`
}

func DefaultCannedReplies() CannedReplies {
	return CannedReplies{
		Greeting:     "Hi! Thanks for reaching out about {product}. How can I help?",
		Price:        "The price for {product} is as listed. I may have a little flexibility for a quick pickup.",
		Availability: "Yes, {product} is still available. When would you like to see it?",
		Default:      "Thanks for your message! I'll get back to you shortly.",
	}
}

func NewCanned(r CannedReplies) *Canned {
	def := DefaultCannedReplies()
	if r.Greeting == "" {
		r.Greeting = def.Greeting
	}
	if r.Price == "" {
		r.Price = def.Price
	}
	if r.Availability == "" {
		r.Availability = def.Availability
	}
	if r.Default == "" {
		r.Default = def.Default
	}
	return &Canned{replies: r}
}

func (c *Canned) Name() string { return "canned" }

// Intent names returned by Classify.
const (
	IntentGreeting     = "greeting"
	IntentPrice        = "price"
	IntentAvailability = "availability"
	IntentDefault      = "default"
)

var intentKeywords = []struct {
	intent string
	words  []string
}{
	{IntentAvailability, []string{"available", "still have", "still for sale", "sold", "in stock", "pick up", "pickup"}},
	{IntentPrice, []string{"price", "how much", "cost", "lowest", "negotiable", "offer", "discount", "cheaper", "$", "€", "£"}},
	{IntentGreeting, []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}},
}

// Classify picks the intent of text by keyword.
func Classify(text string) string {
	t := strings.ToLower(text)
	words := strings.FieldsFunc(t, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '$' || r == '€' || r == '£')
	})
	for _, group := range intentKeywords {
		for _, kw := range group.words {
			if strings.Contains(kw, " ") || len(kw) > 3 || strings.ContainsAny(kw, "$€£") {
				if strings.Contains(t, kw) {
					return group.intent
				}
				continue
			}
			for _, w := range words {
				if w == kw {
					return group.intent
				}
			}
		}
	}
	return IntentDefault
}

// Reply renders the template for text's intent.
func (c *Canned) Reply(text, product string) string {
	var tmpl string
	switch Classify(text) {
	case IntentGreeting:
		tmpl = c.replies.Greeting
	case IntentPrice:
		tmpl = c.replies.Price
	case IntentAvailability:
		tmpl = c.replies.Availability
	default:
		tmpl = c.replies.Default
	}
	if product == "" {
		product = "the item"
	}
	return strings.ReplaceAll(tmpl, "{product}", product)
}

// ProductHintPrefix marks the system line carrying the listing title.
const ProductHintPrefix = "Product: "

func (c *Canned) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	return &domain.Completion{
		Content:  c.Reply(req.LastUserText(), productHint(req)),
		Provider: c.Name(),
	}, nil
}

// productHint finds the listing title in the system messages.
func productHint(req domain.CompletionRequest) string {
	for _, m := range req.Messages {
		if m.Role != domain.RoleSystem {
			continue
		}
		for _, line := range strings.Split(m.Content, "\n") {
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), ProductHintPrefix); ok {
				return strings.TrimSpace(rest)
			}
		}
	}
	return ""
}
