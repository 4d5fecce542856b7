package locator

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Region is a logical area of the Messenger page.
type Region string

const (
	ChatList         Region = "chatList"
	ChatRow          Region = "chatRow"
	MessageContainer Region = "messageContainer"
	MessageRow       Region = "messageRow"
	InputBox         Region = "inputBox"
	SendButton       Region = "sendButton"
	ChatHeader       Region = "chatHeader"
	ProductTitle     Region = "productTitle"
	ProductPrice     Region = "productPrice"
	ProductImage     Region = "productImage"
)

// Table maps each region to its locator.
type Table map[Region]Locator

// Get returns the locator for r; an unknown region yields an empty locator.
func (t Table) Get(r Region) Locator {
	if loc, ok := t[r]; ok {
		return loc
	}
	return Locator{Name: string(r)}
}

// DefaultTable returns the built-in selectors for messenger.com and the
// Marketplace inbox.
func DefaultTable() Table {
	return Table{
		ChatList: {Name: string(ChatList), Selectors: []string{
			`div[aria-label="Chats"][role="grid"]`,
			`div[role="navigation"] div[role="grid"]`,
			`div[aria-label="Marketplace"] div[role="list"]`,
			`div[role="main"] div[role="list"]`,
		}},
		ChatRow: {Name: string(ChatRow), Selectors: []string{
			`div[aria-label="Chats"][role="grid"] div[role="row"]`,
			`div[role="navigation"] div[role="row"]`,
			`div[role="main"] div[role="list"] > div[role="listitem"]`,
			`a[href*="/marketplace/t/"]`,
			`a[href*="/t/"][role="link"]`,
		}},
		MessageContainer: {Name: string(MessageContainer), Selectors: []string{
			`div[aria-label^="Messages in conversation"]`,
			`div[role="main"] div[role="grid"]`,
			`div[role="main"] div[data-pagelet="MWThreadMessages"]`,
			`div[role="main"] div[aria-label][role="log"]`,
		}},
		MessageRow: {Name: string(MessageRow), Selectors: []string{
			`div[aria-label^="Messages in conversation"] div[role="row"]`,
			`div[role="main"] div[role="grid"] div[role="row"]`,
			`div[role="main"] div[data-testid="message-container"]`,
			`div[role="main"] div[dir="auto"][class]`,
		}},
		InputBox: {Name: string(InputBox), Selectors: []string{
			`div[aria-label="Message"][contenteditable="true"]`,
			`div[role="textbox"][contenteditable="true"]`,
			`div[contenteditable="true"][data-lexical-editor="true"]`,
			`textarea[placeholder*="message" i]`,
		}},
		SendButton: {Name: string(SendButton), Selectors: []string{
			`div[aria-label="Press enter to send"]`,
			`div[aria-label="Send"][role="button"]`,
			`div[aria-label="Press Enter to send"]`,
			`button[type="submit"]`,
		}},
		ChatHeader: {Name: string(ChatHeader), Selectors: []string{
			`div[role="main"] div[role="banner"]`,
			`div[role="main"] header`,
			`div[role="main"] h2`,
		}},
		ProductTitle: {Name: string(ProductTitle), Selectors: []string{
			`div[role="main"] a[href*="/marketplace/item/"] span`,
			`div[role="main"] h1 span`,
		}},
		ProductPrice: {Name: string(ProductPrice), Selectors: []string{
			`div[role="main"] a[href*="/marketplace/item/"] span:nth-of-type(2)`,
		}},
		ProductImage: {Name: string(ProductImage), Selectors: []string{
			`div[role="main"] a[href*="/marketplace/item/"] img`,
			`div[role="main"] img[src*="scontent"]`,
		}},
	}
}

// LoadOverrides reads a YAML file of region → selectors and prepends the
// entries to base. A missing file leaves base unchanged.
//
//	messageRow:
//	  - 'div[data-scope="messages_table"] > div'
func LoadOverrides(path string, base Table, logger *slog.Logger) (Table, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("selector overrides not found, using defaults", "path", path)
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read selector overrides: %w", err)
	}

	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse selector overrides %s: %w", path, err)
	}

	out := make(Table, len(base))
	for r, loc := range base {
		out[r] = Locator{Name: loc.Name, Selectors: append([]string(nil), loc.Selectors...)}
	}
	for name, sels := range raw {
		r := Region(name)
		loc := out.Get(r)
		loc.Selectors = append(append([]string(nil), sels...), loc.Selectors...)
		out[r] = loc
		logger.Info("loaded selector override", "region", name, "count", len(sels))
	}
	return out, nil
}
