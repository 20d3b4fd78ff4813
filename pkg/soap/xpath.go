package soap

import (
	"strings"

	"github.com/beevik/etree"
)

// ExtractXPath extracts the text value at the given path from a document.
// Returns an empty string if the path is not found or cannot be compiled.
func ExtractXPath(doc *etree.Document, xpath string) string {
	if doc == nil || xpath == "" {
		return ""
	}

	if elemPath, attrName, ok := strings.Cut(xpath, "/@"); ok {
		elem := findElement(doc, elemPath)
		if elem == nil {
			return ""
		}
		if attr := elem.SelectAttr(attrName); attr != nil {
			return attr.Value
		}
		return ""
	}

	if elem := findElement(doc, xpath); elem != nil {
		return strings.TrimSpace(elem.Text())
	}
	return ""
}

// findElement compiles the path first because FindElement panics on malformed paths.
func findElement(doc *etree.Document, xpath string) *etree.Element {
	path, err := etree.CompilePath(xpath)
	if err != nil {
		return nil
	}
	return doc.FindElementPath(path)
}
