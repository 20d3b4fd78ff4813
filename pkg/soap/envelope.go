package soap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// Errors returned while unwrapping an envelope.
var (
	ErrNotEnvelope = errors.New("root element must be a SOAP Envelope")
	ErrNoBody      = errors.New("SOAP Body not found")
	ErrNoPayload   = errors.New("SOAP Body has no payload element")
)

// Envelope is an unwrapped SOAP request.
type Envelope struct {
	// Version is detected from the envelope namespace.
	Version SOAPVersion

	// Document holds a standalone copy of the payload as its root.
	Document *etree.Document

	// Text is the serialized payload element.
	Text string
}

// Payload returns the payload element.
func (e *Envelope) Payload() *etree.Element {
	return e.Document.Root()
}

// Unwrap parses a SOAP envelope and extracts the first element of its Body.
// Namespace declarations made on the Envelope or Body are copied onto the
// payload so the extracted text stays well-formed; the SOAP namespaces
// themselves are dropped.
func Unwrap(body []byte) (*Envelope, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("invalid XML: %w", err)
	}

	root := doc.Root()
	if root == nil || root.Tag != "Envelope" {
		return nil, ErrNotEnvelope
	}

	var soapBody *etree.Element
	for _, child := range root.ChildElements() {
		if child.Tag == "Body" {
			soapBody = child
			break
		}
	}
	if soapBody == nil {
		return nil, ErrNoBody
	}

	children := soapBody.ChildElements()
	if len(children) == 0 {
		return nil, ErrNoPayload
	}

	payload := children[0].Copy()
	inheritNamespaces(payload, root, soapBody)

	pdoc := etree.NewDocument()
	pdoc.SetRoot(payload)
	text, err := pdoc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	return &Envelope{
		Version:  DetectVersion(doc),
		Document: pdoc,
		Text:     text,
	}, nil
}

func inheritNamespaces(payload *etree.Element, ancestors ...*etree.Element) {
	for _, anc := range ancestors {
		for _, attr := range anc.Attr {
			if !isNamespaceDecl(attr) || attr.Value == SOAP11Namespace || attr.Value == SOAP12Namespace {
				continue
			}
			if payload.SelectAttr(attr.FullKey()) == nil {
				payload.CreateAttr(attr.FullKey(), attr.Value)
			}
		}
	}
}

func isNamespaceDecl(attr etree.Attr) bool {
	return (attr.Space == "" && attr.Key == "xmlns") || attr.Space == "xmlns"
}

// DetectVersion detects the SOAP version from the envelope namespace.
func DetectVersion(doc *etree.Document) SOAPVersion {
	root := doc.Root()
	if root == nil {
		return SOAP11
	}

	for _, attr := range root.Attr {
		if isNamespaceDecl(attr) && attr.Value == SOAP12Namespace {
			return SOAP12
		}
	}

	if root.NamespaceURI() == SOAP12Namespace {
		return SOAP12
	}

	return SOAP11
}

// Wrap puts payload into the Body of a new envelope of the given version.
// A payload that is not XML is placed into the Body as character data.
func Wrap(payload string, version SOAPVersion) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	env := doc.CreateElement("soap:Envelope")
	env.CreateAttr("xmlns:soap", version.Namespace())
	body := env.CreateElement("soap:Body")

	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "<") {
		pdoc := etree.NewDocument()
		if err := pdoc.ReadFromString(trimmed); err != nil {
			return "", fmt.Errorf("invalid response payload: %w", err)
		}
		if root := pdoc.Root(); root != nil {
			body.AddChild(root)
		}
	} else if trimmed != "" {
		body.SetText(payload)
	}

	return doc.WriteToString()
}

// BuildFault builds a SOAP fault envelope of the given version.
func BuildFault(fault *SOAPFault, version SOAPVersion) []byte {
	if version == SOAP12 {
		return buildFault12(fault)
	}
	return buildFault11(fault)
}

func buildFault11(fault *SOAPFault) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + SOAP11Namespace + `">`)
	buf.WriteString(`<soap:Body>`)
	buf.WriteString(`<soap:Fault>`)
	buf.WriteString(`<faultcode>` + escapeXML(fault.Code) + `</faultcode>`)
	buf.WriteString(`<faultstring>` + escapeXML(fault.Message) + `</faultstring>`)
	buf.WriteString(`</soap:Fault>`)
	buf.WriteString(`</soap:Body>`)
	buf.WriteString(`</soap:Envelope>`)
	return buf.Bytes()
}

func buildFault12(fault *SOAPFault) []byte {
	code := fault.Code
	switch code {
	case "soap:Client", "Client":
		code = "soap:Sender"
	case "soap:Server", "Server":
		code = "soap:Receiver"
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + SOAP12Namespace + `">`)
	buf.WriteString(`<soap:Body>`)
	buf.WriteString(`<soap:Fault>`)
	buf.WriteString(`<soap:Code><soap:Value>` + escapeXML(code) + `</soap:Value></soap:Code>`)
	buf.WriteString(`<soap:Reason><soap:Text xml:lang="en">` + escapeXML(fault.Message) + `</soap:Text></soap:Reason>`)
	buf.WriteString(`</soap:Fault>`)
	buf.WriteString(`</soap:Body>`)
	buf.WriteString(`</soap:Envelope>`)
	return buf.Bytes()
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}
