// Package product pulls Marketplace listing data out of a conversation
// page: first from the JSON preloaders Facebook ships in <script> tags,
// then by scraping visible text.
package product

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"fbmonitor/internal/domain"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultPayloadKeys are preloader keys known to wrap a listing.
var DefaultPayloadKeys = []string{
	"marketplace_product_details_page",
	"marketplace_listing_renderable_target",
	"target",
	"listing",
}

var pricePattern = regexp.MustCompile(`(?:[$€£¥₫₹₱]\s?\d[\d.,]*|\d[\d.,]*\s?(?:USD|EUR|GBP|VND|₫|đ|kr|zł))|^(?i:free)$`)

// Extractor parses listing data from page HTML and chat headers.
type Extractor struct {
	keys   []string
	logger *slog.Logger
}

func NewExtractor(keys []string, logger *slog.Logger) *Extractor {
	if len(keys) == 0 {
		keys = DefaultPayloadKeys
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{keys: keys, logger: logger}
}

// FromHTML tries the script payloads first and falls back to the DOM.
func (e *Extractor) FromHTML(page string) (domain.ProductInfo, bool) {
	if page == "" {
		return domain.ProductInfo{}, false
	}
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		e.logger.Debug("parse page html failed", "err", err)
		return domain.ProductInfo{}, false
	}

	for _, script := range scriptBodies(doc) {
		if info, ok := e.fromScript(script); ok {
			return info, true
		}
	}

	info := fromDOM(doc)
	return info, !info.IsEmpty()
}

func (e *Extractor) fromScript(script string) (domain.ProductInfo, bool) {
	for _, key := range e.keys {
		payload, ok := FindPayload(script, key)
		if !ok {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			e.logger.Debug("payload is not valid JSON", "key", key, "err", err)
			continue
		}
		info := fromListing(obj)
		if info.Title != "" {
			return info, true
		}
	}
	return domain.ProductInfo{}, false
}

// fromListing reads the well-known listing fields from the object that
// carries the listing title, wherever it sits in obj.
func fromListing(obj map[string]any) domain.ProductInfo {
	listing := findOwner(obj, "marketplace_listing_title")
	if listing == nil {
		listing = findOwner(obj, "listing_title")
	}
	if listing == nil {
		return domain.ProductInfo{}
	}

	var info domain.ProductInfo
	info.Title = firstNonEmpty(stringAt(listing, "marketplace_listing_title"), stringAt(listing, "listing_title"))
	if price, ok := listing["listing_price"].(map[string]any); ok {
		info.Price = firstNonEmpty(stringAt(price, "formatted_amount"), stringAt(price, "amount"))
	}
	if info.Price == "" {
		info.Price = stringAt(listing, "formatted_price")
	}
	if photo, ok := listing["primary_listing_photo"].(map[string]any); ok {
		info.ImageURL = stringAt(photo, "uri")
	}
	if desc, ok := listing["redacted_description"].(map[string]any); ok {
		info.Description = stringAt(desc, "text")
	}
	switch id := listing["id"].(type) {
	case string:
		info.ID = id
	case float64:
		info.ID = strconv.FormatFloat(id, 'f', -1, 64)
	}
	return info
}

// findOwner returns the first object, depth-first, that has key.
func findOwner(v any, key string) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		if _, ok := t[key]; ok {
			return t
		}
		for _, child := range t {
			if found := findOwner(child, key); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range t {
			if found := findOwner(child, key); found != nil {
				return found
			}
		}
	}
	return nil
}

// findKey searches obj depth-first for key.
func findKey(v any, key string) any {
	switch t := v.(type) {
	case map[string]any:
		if val, ok := t[key]; ok {
			return val
		}
		for _, child := range t {
			if found := findKey(child, key); found != nil {
				return found
			}
		}
	case []any:
		for _, child := range t {
			if found := findKey(child, key); found != nil {
				return found
			}
		}
	}
	return nil
}

func stringAt(v any, key string) string {
	switch s := findKey(v, key).(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func scriptBodies(doc *html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				out = append(out, n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// fromDOM scrapes meta tags, the first heading, the first price-looking
// text and the first CDN image.
func fromDOM(doc *html.Node) domain.ProductInfo {
	var info domain.ProductInfo
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Meta:
				content := attr(n, "content")
				switch attr(n, "property") {
				case "og:title":
					info.Title = firstNonEmpty(info.Title, content)
				case "og:image":
					info.ImageURL = firstNonEmpty(info.ImageURL, content)
				case "og:description":
					info.Description = firstNonEmpty(info.Description, content)
				case "product:price:amount":
					info.Price = firstNonEmpty(info.Price, content)
				}
			case atom.H1:
				info.Title = firstNonEmpty(info.Title, textOf(n))
			case atom.Img:
				if src := attr(n, "src"); strings.Contains(src, "scontent") || strings.Contains(src, "fbcdn") {
					info.ImageURL = firstNonEmpty(info.ImageURL, src)
				}
			}
		}
		if n.Type == html.TextNode && info.Price == "" {
			if p := pricePattern.FindString(strings.TrimSpace(n.Data)); p != "" {
				info.Price = strings.TrimSpace(p)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return info
}

// FromHeader parses a chat header such as "Mountain bike · $120".
func (e *Extractor) FromHeader(header string) (domain.ProductInfo, bool) {
	var info domain.ProductInfo
	for _, line := range strings.Split(header, "\n") {
		for _, part := range strings.Split(line, "·") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if info.Price == "" && pricePattern.MatchString(part) {
				info.Price = pricePattern.FindString(part)
				continue
			}
			if info.Title == "" {
				info.Title = part
			}
		}
	}
	if info.Title != "" || info.Price != "" {
		info.Context = strings.TrimSpace(header)
	}
	return info, !info.IsEmpty()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return strings.TrimSpace(b)
}
