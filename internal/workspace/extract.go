// Package workspace turns local files into plain-text documents and uploads
// them to the user's workspace corpus so scoped questions can draw on them.
package workspace

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Document is the plain-text form of a local file, ready for upload.
type Document struct {
	Title   string
	Content string
}

// Extract reads a local file and converts it to plain text. Supported
// formats: PDF, HTML, and anything else is treated as plain text. The title
// defaults to the file name without extension; HTML documents use their
// <title> when present.
func Extract(path string) (Document, error) {
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		content, err := extractPDF(path)
		if err != nil {
			return Document{}, fmt.Errorf("extracting pdf %s: %w", path, err)
		}
		return Document{Title: title, Content: content}, nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, err
		}
		content, htmlTitle, err := extractHTML(string(data))
		if err != nil {
			return Document{}, fmt.Errorf("extracting html %s: %w", path, err)
		}
		if htmlTitle != "" {
			title = htmlTitle
		}
		return Document{Title: title, Content: content}, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return Document{}, err
		}
		return Document{Title: title, Content: string(data)}, nil
	}
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var sb bytes.Buffer
	if _, err := sb.ReadFrom(reader); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// extractHTML walks the parse tree collecting text nodes, skipping script
// and style subtrees.
func extractHTML(src string) (content, title string, err error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style":
				return
			case "title":
				if n.FirstChild != nil && title == "" {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return sb.String(), title, nil
}
