// Package outbound rewrites messages on their way to gateway correspondents
// and holds the composition stages that decide what a reply contains.
package outbound

import "strings"

const (
	TypePlain = "text/plain"
	TypeHTML  = "text/html"
)

// Part is one body part besides the primary body: an alternative rendering
// or an attachment.
type Part struct {
	ContentType string
	Filename    string
	Content     []byte
}

// IsHTML reports whether the part is an HTML rendering.
func (p Part) IsHTML() bool {
	return isHTML(p.ContentType)
}

// OutgoingMessage is the view of a message the interceptor needs.
// Implementations report absent fields as empty values.
type OutgoingMessage interface {
	Recipients() []string
	// Body returns the primary body and its media type.
	Body() (body, contentType string)
	Parts() []Part
	SetBody(body, contentType string) error
	DetachParts() error
}

func isHTML(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, TypeHTML)
}

// bestBody picks the richest rendering: the primary body when it is HTML,
// else the first HTML part, else the primary body.
func bestBody(msg OutgoingMessage) string {
	body, contentType := msg.Body()
	if isHTML(contentType) {
		return body
	}
	for _, p := range msg.Parts() {
		if p.IsHTML() {
			return string(p.Content)
		}
	}
	return body
}
