package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/waitlist"
)

const RestockSubject = "Back in stock!"

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Message is one rendered restock email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Composer renders restock emails that link back to the storefront.
type Composer struct {
	shopDomain string
	html       *htmltemplate.Template
	text       *texttemplate.Template
}

func NewComposer(shopDomain string) (*Composer, error) {
	html, err := htmltemplate.ParseFS(templatesFS, "templates/restock.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}
	text, err := texttemplate.ParseFS(templatesFS, "templates/restock.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	return &Composer{
		shopDomain: strings.TrimSuffix(strings.TrimSpace(shopDomain), "/"),
		html:       html,
		text:       text,
	}, nil
}

type templateData struct {
	URL  string
	Shop string
}

func (c *Composer) Compose(sub waitlist.Subscription) (Message, error) {
	data := templateData{URL: PurchaseURL(c.shopDomain, sub), Shop: c.shopDomain}

	var html, text bytes.Buffer
	if err := c.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html body: %w", err)
	}
	if err := c.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text body: %w", err)
	}

	return Message{
		To:      sub.Email,
		Subject: RestockSubject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// PurchaseURL links to the product page, preselecting the variant when known.
// Subscriptions that only know an inventory item get the storefront root.
func PurchaseURL(shopDomain string, sub waitlist.Subscription) string {
	u := url.URL{Scheme: "https", Host: shopDomain, Path: "/"}
	if sub.ProductID == "" {
		return u.String()
	}
	u.Path = "/products/" + sub.ProductID
	if sub.VariantID != "" {
		u.RawQuery = url.Values{"variant": {sub.VariantID}}.Encode()
	}
	return u.String()
}
