// Package classify decides which gateway wrapper, if any, surrounds a body.
package classify

import (
	"strings"

	"github.com/maxo-smsgw/smsgw/internal/pattern"
)

// Shape is the structural kind of a message body
type Shape string

const (
	ShapeConfirmation Shape = "confirmation" // gateway echo of an outbound SMS
	ShapeInbound      Shape = "inbound"      // SMS relayed into the mailbox
	ShapePlain        Shape = "plain"        // anything else
)

// Classify inspects plain text and returns its shape. Confirmation markers
// win over relay markers since echoes quote the relay wording.
func Classify(text string) Shape {
	switch {
	case strings.TrimSpace(text) == "":
		return ShapePlain
	case pattern.ConfirmationMarker.MatchString(text):
		return ShapeConfirmation
	case pattern.RelayMarker.MatchString(text):
		return ShapeInbound
	default:
		return ShapePlain
	}
}

// IsConfirmation reports whether text is a send-confirmation echo.
func IsConfirmation(text string) bool {
	return Classify(text) == ShapeConfirmation
}
