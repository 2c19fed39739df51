package mimetext

import (
	"errors"
	"io"
	"strings"

	"tank-location-sync/internal/errs"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
)

// Node is a fully read MIME part
type Node struct {
	Type     string
	Text     string
	Children []*Node
}

func (n *Node) MediaType() string { return n.Type }

func (n *Node) Content() (string, error) { return n.Text, nil }

func (n *Node) Parts() ([]Part, error) {
	parts := make([]Part, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c
	}
	return parts, nil
}

// Parse reads a raw RFC 5322 message into a Node tree. Text parts are decoded
// (transfer encoding and charset); other leaves are skipped unread.
func Parse(r io.Reader) (*Node, error) {
	entity, err := message.Read(r)
	if entity == nil {
		return nil, errs.Transport(err, "reading message")
	}
	if err != nil && !tolerable(err) {
		return nil, errs.Transport(err, "reading message")
	}
	return build(entity)
}

// ExtractFrom parses r and returns its text representation
func ExtractFrom(r io.Reader) (string, bool, error) {
	node, err := Parse(r)
	if err != nil {
		return "", false, err
	}
	return Extract(node)
}

func build(e *message.Entity) (*Node, error) {
	mediaType, _, err := e.Header.ContentType()
	if err != nil || mediaType == "" {
		// RFC 2045 default
		mediaType = "text/plain"
	}
	node := &Node{Type: mediaType}

	if mr := e.MultipartReader(); mr != nil {
		for {
			child, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if child == nil || (err != nil && !tolerable(err)) {
				return nil, errs.Transport(err, "reading "+mediaType+" part")
			}
			childNode, err := build(child)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, childNode)
		}
		return node, nil
	}

	if strings.HasPrefix(strings.ToLower(mediaType), "text/") {
		body, err := io.ReadAll(e.Body)
		if err != nil {
			return nil, errs.Transport(err, "reading "+mediaType+" body")
		}
		node.Text = string(body)
	}
	return node, nil
}

// tolerable reports errors after which the entity is still usable with its raw body
func tolerable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
