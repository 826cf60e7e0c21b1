package ingest

import (
	"encoding/base64"
	"fmt"
)

const placeholderSVG = `<svg width="400" height="300" xmlns="http://www.w3.org/2000/svg">` +
	`<rect width="400" height="300" fill="#f0f0f0" stroke="#cccccc"/>` +
	`<text x="200" y="150" text-anchor="middle" fill="#666666" font-family="sans-serif" font-size="16">Slide %d</text>` +
	`</svg>`

// Placeholder returns an inline SVG image showing the slide number.
// It is stable for a given slide number and never touches the store.
func Placeholder(slideNumber int) string {
	svg := fmt.Sprintf(placeholderSVG, slideNumber)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
