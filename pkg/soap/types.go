package soap

// SOAPVersion represents the SOAP protocol version.
type SOAPVersion string

const (
	// SOAP11 represents SOAP 1.1 protocol.
	SOAP11 SOAPVersion = "1.1"
	// SOAP12 represents SOAP 1.2 protocol.
	SOAP12 SOAPVersion = "1.2"
)

// SOAP namespace URIs.
const (
	SOAP11Namespace = "http://schemas.xmlsoap.org/soap/envelope/"
	SOAP12Namespace = "http://www.w3.org/2003/05/soap-envelope"
)

// Namespace returns the envelope namespace URI of the version.
func (v SOAPVersion) Namespace() string {
	if v == SOAP12 {
		return SOAP12Namespace
	}
	return SOAP11Namespace
}

// ContentType returns the media type used for responses of the version.
func (v SOAPVersion) ContentType() string {
	if v == SOAP12 {
		return "application/soap+xml; charset=utf-8"
	}
	return "text/xml; charset=utf-8"
}

// SOAPFault represents a SOAP fault to be returned.
type SOAPFault struct {
	// Code is the fault code (e.g., "soap:Server").
	Code string
	// Message is the human-readable fault description.
	Message string
}
