// Package xades produces and checks enveloped XML-DSig signatures carrying
// XAdES-EPES qualifying properties.
//
// Implements the subset of XML Signature Syntax and Processing
// (https://www.w3.org/TR/xmldsig-core/) and ETSI EN 319 132-1 (XAdES)
// used for electronic invoices: one enveloped Reference over the whole
// document, RSA-SHA256, inclusive C14N 1.0.
package xades

import (
	"github.com/beevik/etree"
)

// Namespaces.
const (
	NamespaceDS    = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"

	prefixDS    = "ds"
	prefixXAdES = "xades"
)

// Algorithm identifiers.
const (
	AlgorithmC14N10    = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgorithmRSASHA256 = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgorithmSHA256    = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// XML-DSig element names.
const (
	tagSignature              = "Signature"
	tagSignedInfo             = "SignedInfo"
	tagCanonicalizationMethod = "CanonicalizationMethod"
	tagSignatureMethod        = "SignatureMethod"
	tagReference              = "Reference"
	tagTransforms             = "Transforms"
	tagTransform              = "Transform"
	tagDigestMethod           = "DigestMethod"
	tagDigestValue            = "DigestValue"
	tagSignatureValue         = "SignatureValue"
	tagKeyInfo                = "KeyInfo"
	tagX509Data               = "X509Data"
	tagX509Certificate        = "X509Certificate"
	tagX509IssuerName         = "X509IssuerName"
	tagX509SerialNumber       = "X509SerialNumber"
	tagObject                 = "Object"
)

// XAdES element names.
const (
	tagQualifyingProperties      = "QualifyingProperties"
	tagSignedProperties          = "SignedProperties"
	tagSignedSignatureProperties = "SignedSignatureProperties"
	tagSigningTime               = "SigningTime"
	tagSigningCertificate        = "SigningCertificate"
	tagCert                      = "Cert"
	tagCertDigest                = "CertDigest"
	tagIssuerSerial              = "IssuerSerial"
	tagSignaturePolicyIdentifier = "SignaturePolicyIdentifier"
	tagSignaturePolicyImplied    = "SignaturePolicyImplied"
)

const attrAlgorithm = "Algorithm"

// SigningTimeLayout is the xsd:dateTime form written to SigningTime.
const SigningTimeLayout = "2006-01-02T15:04:05Z"

func ds(tag string) string { return prefixDS + ":" + tag }
func xa(tag string) string { return prefixXAdES + ":" + tag }

func isDS(el *etree.Element, tag string) bool {
	return el.Tag == tag && el.NamespaceURI() == NamespaceDS
}

func isXAdES(el *etree.Element, tag string) bool {
	return el.Tag == tag && el.NamespaceURI() == NamespaceXAdES
}

// childDS returns the first XML-DSig child of el named tag.
func childDS(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if isDS(c, tag) {
			return c
		}
	}
	return nil
}

// childXAdES returns the first XAdES child of el named tag.
func childXAdES(el *etree.Element, tag string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if isXAdES(c, tag) {
			return c
		}
	}
	return nil
}

// pathDS follows a chain of XML-DSig children from el.
func pathDS(el *etree.Element, tags ...string) *etree.Element {
	for _, tag := range tags {
		el = childDS(el, tag)
	}
	return el
}
