// Package soap handles the SOAP envelope around mock payloads.
//
// Mocks registered in soap mode never see the envelope: Unwrap extracts the
// first element of the SOAP Body so that predicates and responses work on
// the payload alone, and Wrap puts the synthesized payload back into an
// envelope of the same SOAP version.
//
// # SOAP Versions
//
// Both SOAP 1.1 (http://schemas.xmlsoap.org/soap/envelope/) and SOAP 1.2
// (http://www.w3.org/2003/05/soap-envelope) envelopes are recognized. The
// version is detected from the envelope namespace and defaults to 1.1.
//
// # XPath
//
// ExtractXPath evaluates the etree path subset against a document:
//
//	/path/to/element       absolute path
//	//element              find anywhere in document
//	/path/to/element/@attr attribute value
//	/path/to/element[1]    indexed access (1-based)
package soap
