// Package mimetext picks the text representation of a MIME message.
package mimetext

import (
	"strings"
)

// Part is one node of a MIME tree. Leaf parts expose their decoded content,
// multipart parts expose their children in order.
type Part interface {
	MediaType() string
	Content() (string, error)
	Parts() ([]Part, error)
}

// Extract returns the best text representation of p. The boolean is false
// when the part holds no text at all.
//
// Precedence:
//   - text/* returns its content.
//   - multipart/alternative remembers the first text/plain child, returns a
//     text/html child at once, and returns the result of any other child at
//     once, even when that result is empty. Without such a short-circuit the
//     remembered plain text is returned.
//   - any other multipart/* returns the first child that yields text.
//   - everything else yields nothing.
func Extract(p Part) (string, bool, error) {
	mediaType := strings.ToLower(p.MediaType())

	if strings.HasPrefix(mediaType, "text/") {
		s, err := p.Content()
		if err != nil {
			return "", false, err
		}
		return s, true, nil
	}

	if mediaType == "multipart/alternative" {
		children, err := p.Parts()
		if err != nil {
			return "", false, err
		}

		var plain string
		var havePlain bool
		for _, child := range children {
			if strings.ToLower(child.MediaType()) == "text/plain" {
				if havePlain {
					continue
				}
				s, ok, err := Extract(child)
				if err != nil {
					return "", false, err
				}
				plain, havePlain = s, ok
				continue
			}
			// html and every other type end the scan
			return Extract(child)
		}
		return plain, havePlain, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		children, err := p.Parts()
		if err != nil {
			return "", false, err
		}
		for _, child := range children {
			s, ok, err := Extract(child)
			if err != nil {
				return "", false, err
			}
			if ok {
				return s, true, nil
			}
		}
	}

	return "", false, nil
}
