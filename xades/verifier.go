package xades

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/georgepadayatti/taxsign/certvalidator"
	"github.com/georgepadayatti/taxsign/kind"
)

// Verification is the outcome of checking a signed document.
type Verification struct {
	// StructurallyValid is true when the document carries exactly one
	// complete signature block with a decodable certificate.
	StructurallyValid bool `json:"is_structurally_valid"`

	// SignatureValid is true when the digest and the RSA signature both
	// verify against the embedded certificate.
	SignatureValid bool `json:"is_signature_valid"`

	Facts *certvalidator.Facts `json:"embedded_certificate_facts,omitempty"`

	// SigningTime is the claimed xades:SigningTime. SignedProperties are not
	// covered by the signature's Reference, so this value is unauthenticated
	// and can be altered without breaking verification.
	SigningTime *time.Time `json:"signing_time,omitempty"`

	Errors []kind.Error `json:"errors"`

	// Certificate is the embedded signing certificate.
	Certificate *x509.Certificate `json:"-"`
}

// Valid reports whether the document is well formed and its signature holds.
func (v *Verification) Valid() bool {
	return v.StructurallyValid && v.SignatureValid
}

func (v *Verification) fail(k kind.Error) *Verification {
	v.Errors = append(v.Errors, k)
	return v
}

// Verifier checks enveloped signatures produced by Signer.
type Verifier struct{}

// NewVerifier creates a verifier.
func NewVerifier() *Verifier {
	return &Verifier{}
}

// signatureParts are the pieces of a signature block the verifier needs.
type signatureParts struct {
	signedInfo     *etree.Element
	digest         []byte
	signatureValue []byte
	certDER        []byte
	certDigest     []byte
	signingTime    *time.Time
}

// Verify checks the signature embedded in doc. Problems are reported in the
// result, never as an error.
func (v *Verifier) Verify(doc []byte) *Verification {
	res := &Verification{Errors: []kind.Error{}}

	_, root, err := parseDocument(doc)
	if err != nil {
		return res.fail(kind.InvalidInputXML)
	}

	sigs := findSignatures(root, nil)
	switch {
	case len(sigs) == 0:
		return res.fail(kind.MissingSignatureElement)
	case len(sigs) > 1, sigs[0].Parent() != root:
		return res.fail(kind.MalformedSignatureBlock)
	}
	sig := sigs[0]

	parts, ok := extractParts(sig)
	if !ok {
		return res.fail(kind.MalformedSignatureBlock)
	}
	cert, err := x509.ParseCertificate(parts.certDER)
	if err != nil {
		return res.fail(kind.MalformedSignatureBlock)
	}
	res.Certificate = cert
	res.Facts = certvalidator.FactsOf(cert)
	res.SigningTime = parts.signingTime
	res.StructurallyValid = true

	if !verifyCrypto(root, sig, parts, cert) {
		return res.fail(kind.SignatureMismatch)
	}
	res.SignatureValid = true
	return res
}

// findSignatures collects ds:Signature elements at or below el without
// descending into them.
func findSignatures(el *etree.Element, found []*etree.Element) []*etree.Element {
	if isDS(el, tagSignature) {
		return append(found, el)
	}
	for _, child := range el.ChildElements() {
		found = findSignatures(child, found)
	}
	return found
}

// extractParts checks the shape of sig and decodes its values.
func extractParts(sig *etree.Element) (*signatureParts, bool) {
	signedInfo := childDS(sig, tagSignedInfo)
	if signedInfo == nil {
		return nil, false
	}
	if algorithm(childDS(signedInfo, tagCanonicalizationMethod)) != AlgorithmC14N10 ||
		algorithm(childDS(signedInfo, tagSignatureMethod)) != AlgorithmRSASHA256 {
		return nil, false
	}

	var refs []*etree.Element
	for _, c := range signedInfo.ChildElements() {
		if isDS(c, tagReference) {
			refs = append(refs, c)
		}
	}
	if len(refs) != 1 || refs[0].SelectAttrValue("URI", "-") != "" {
		return nil, false
	}
	ref := refs[0]
	if !hasEnvelopedTransform(childDS(ref, tagTransforms)) ||
		algorithm(childDS(ref, tagDigestMethod)) != AlgorithmSHA256 {
		return nil, false
	}

	parts := &signatureParts{signedInfo: signedInfo}
	var ok bool
	if parts.digest, ok = decodeBase64(childDS(ref, tagDigestValue)); !ok {
		return nil, false
	}
	if parts.signatureValue, ok = decodeBase64(childDS(sig, tagSignatureValue)); !ok {
		return nil, false
	}
	if parts.certDER, ok = decodeBase64(pathDS(sig, tagKeyInfo, tagX509Data, tagX509Certificate)); !ok {
		return nil, false
	}

	sigProps := childXAdES(
		childXAdES(
			childXAdES(childDS(sig, tagObject), tagQualifyingProperties),
			tagSignedProperties),
		tagSignedSignatureProperties)
	if sigProps == nil {
		return parts, true
	}
	if el := childXAdES(sigProps, tagSigningTime); el != nil {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(el.Text()))
		if err != nil {
			return nil, false
		}
		parts.signingTime = &t
	}
	certDigest := childXAdES(childXAdES(childXAdES(sigProps, tagSigningCertificate), tagCert), tagCertDigest)
	if certDigest != nil {
		if algorithm(childDS(certDigest, tagDigestMethod)) != AlgorithmSHA256 {
			return nil, false
		}
		if parts.certDigest, ok = decodeBase64(childDS(certDigest, tagDigestValue)); !ok {
			return nil, false
		}
	}
	return parts, true
}

// verifyCrypto recomputes the reference digest and checks the signature
// value and signing certificate digest.
func verifyCrypto(root, sig *etree.Element, parts *signatureParts, cert *x509.Certificate) bool {
	canonical, err := canonicalDocument(root, sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(canonical)
	if !bytes.Equal(digest[:], parts.digest) {
		return false
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}
	signedInfo, err := canonicalSignedInfo(parts.signedInfo)
	if err != nil {
		return false
	}
	hashed := sha256.Sum256(signedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, hashed[:], parts.signatureValue); err != nil {
		return false
	}

	if parts.certDigest != nil {
		sum := sha256.Sum256(parts.certDER)
		if !bytes.Equal(sum[:], parts.certDigest) {
			return false
		}
	}
	return true
}

// hasEnvelopedTransform reports whether transforms names the enveloped
// signature transform and nothing beyond C14N 1.0.
func hasEnvelopedTransform(transforms *etree.Element) bool {
	if transforms == nil {
		return false
	}
	enveloped := false
	for _, t := range transforms.ChildElements() {
		if !isDS(t, tagTransform) {
			return false
		}
		switch algorithm(t) {
		case TransformEnveloped:
			enveloped = true
		case AlgorithmC14N10:
		default:
			return false
		}
	}
	return enveloped
}

func algorithm(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.SelectAttrValue(attrAlgorithm, "")
}

// decodeBase64 decodes the text of el, ignoring line breaks. Missing or empty
// elements are rejected.
func decodeBase64(el *etree.Element) ([]byte, bool) {
	if el == nil {
		return nil, false
	}
	text := strings.Join(strings.Fields(el.Text()), "")
	if text == "" {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
