// Package xmlreport reads Cobertura-style coverage reports into a flat,
// tag-indexed view of their elements.
//
// Documents are parsed completely before any query runs, so a malformed file
// fails as a whole rather than yielding a prefix of its elements.
package xmlreport

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/ianaindex"
)

// Element is one XML element with its attributes
type Element struct {
	Tag   string
	attrs map[string]string
}

// Attr returns the value of the named attribute
func (e Element) Attr(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

// Document holds every element of a report in document order
type Document struct {
	byTag map[string][]Element
	total int
}

// ElementsByTagName returns all elements with the given local name, in
// document order, at any depth.
func (d *Document) ElementsByTagName(tag string) []Element {
	if d == nil {
		return nil
	}
	return d.byTag[tag]
}

// Len returns the number of elements in the document
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return d.total
}

// ParseFile opens and fully decodes the report at path
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return doc, nil
}

// charsetReader transcodes documents declaring a non UTF-8 encoding such as
// ISO-8859-1 or windows-1252.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Parse decodes a report from r
func Parse(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	doc := &Document{byTag: make(map[string][]Element)}
	depth := 0
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && sawRoot {
				return nil, fmt.Errorf("multiple root elements: <%s>", t.Name.Local)
			}
			sawRoot = true
			depth++

			el := Element{Tag: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			doc.byTag[el.Tag] = append(doc.byTag[el.Tag], el)
			doc.total++
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, errors.New("document has no root element")
	}
	return doc, nil
}
