package xades

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"time"

	"github.com/beevik/etree"
	"github.com/georgepadayatti/taxsign/certvalidator"
	"github.com/georgepadayatti/taxsign/kind"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Signer errors
var (
	ErrNilBundle      = errors.New("no validated bundle supplied")
	ErrAlreadySigned  = errors.New("document already carries a signature")
	ErrUnsupportedKey = errors.New("signing key is not RSA")
)

// Signer appends enveloped XAdES-EPES signatures to XML documents.
type Signer struct {
	clock clockwork.Clock
	newID func() string
}

// NewSigner creates a signer that stamps SigningTime from clock. A nil clock
// uses the wall clock.
func NewSigner(clock clockwork.Clock) *Signer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Signer{clock: clock, newID: uuid.NewString}
}

// signatureIDs are the Id attributes of one signature block. None of them
// appear inside SignedInfo.
type signatureIDs struct {
	signature        string
	signatureValue   string
	signedProperties string
}

func (s *Signer) ids() signatureIDs {
	id := s.newID()
	return signatureIDs{
		signature:        "Signature-" + id,
		signatureValue:   "SignatureValue-" + id,
		signedProperties: "SignedProperties-" + id,
	}
}

// Sign signs doc with the bundle's key and returns the signed document.
//
// Failures are *kind.Failure values of kind InvalidInputXML or SigningFailed.
func (s *Signer) Sign(doc []byte, vb *certvalidator.ValidatedBundle) ([]byte, error) {
	if vb == nil || vb.PrivateKey() == nil || vb.Certificate() == nil {
		return nil, kind.Fail(kind.SigningFailed, ErrNilBundle)
	}
	if _, ok := vb.PrivateKey().Public().(*rsa.PublicKey); !ok {
		return nil, kind.Fail(kind.SigningFailed, ErrUnsupportedKey)
	}

	tree, root, err := parseDocument(doc)
	if err != nil {
		return nil, kind.Fail(kind.InvalidInputXML, err)
	}
	for _, child := range root.ChildElements() {
		if isDS(child, tagSignature) {
			return nil, kind.Fail(kind.InvalidInputXML, ErrAlreadySigned)
		}
	}

	canonical, err := canonicalDocument(root, nil)
	if err != nil {
		return nil, kind.Failf(kind.InvalidInputXML, "canonicalize document: %w", err)
	}
	digest := sha256.Sum256(canonical)

	sig := buildSignature(s.ids(), digest[:], vb.Certificate(), s.clock.Now())
	root.AddChild(sig)

	signedInfo, err := canonicalSignedInfo(childDS(sig, tagSignedInfo))
	if err != nil {
		return nil, kind.Failf(kind.SigningFailed, "canonicalize SignedInfo: %w", err)
	}
	hashed := sha256.Sum256(signedInfo)
	value, err := vb.PrivateKey().Sign(rand.Reader, hashed[:], crypto.SHA256)
	if err != nil {
		return nil, kind.Fail(kind.SigningFailed, err)
	}
	childDS(sig, tagSignatureValue).SetText(base64.StdEncoding.EncodeToString(value))

	// Character references for CR, and for TAB and LF in attributes, must
	// survive reparsing or the digest no longer matches.
	tree.WriteSettings.CanonicalText = true
	tree.WriteSettings.CanonicalAttrVal = true
	out, err := tree.WriteToBytes()
	if err != nil {
		return nil, kind.Failf(kind.SigningFailed, "serialize document: %w", err)
	}
	return out, nil
}

// buildSignature creates the ds:Signature element with an empty
// SignatureValue.
func buildSignature(ids signatureIDs, digest []byte, cert *x509.Certificate, signingTime time.Time) *etree.Element {
	sig := etree.NewElement(ds(tagSignature))
	sig.CreateAttr("xmlns:"+prefixDS, NamespaceDS)
	sig.CreateAttr("Id", ids.signature)

	signedInfo := sig.CreateElement(ds(tagSignedInfo))
	signedInfo.CreateElement(ds(tagCanonicalizationMethod)).CreateAttr(attrAlgorithm, AlgorithmC14N10)
	signedInfo.CreateElement(ds(tagSignatureMethod)).CreateAttr(attrAlgorithm, AlgorithmRSASHA256)

	ref := signedInfo.CreateElement(ds(tagReference))
	ref.CreateAttr("URI", "")
	transforms := ref.CreateElement(ds(tagTransforms))
	transforms.CreateElement(ds(tagTransform)).CreateAttr(attrAlgorithm, TransformEnveloped)
	transforms.CreateElement(ds(tagTransform)).CreateAttr(attrAlgorithm, AlgorithmC14N10)
	ref.CreateElement(ds(tagDigestMethod)).CreateAttr(attrAlgorithm, AlgorithmSHA256)
	ref.CreateElement(ds(tagDigestValue)).SetText(base64.StdEncoding.EncodeToString(digest))

	sig.CreateElement(ds(tagSignatureValue)).CreateAttr("Id", ids.signatureValue)

	sig.CreateElement(ds(tagKeyInfo)).
		CreateElement(ds(tagX509Data)).
		CreateElement(ds(tagX509Certificate)).
		SetText(base64.StdEncoding.EncodeToString(cert.Raw))

	qualifying := sig.CreateElement(ds(tagObject)).CreateElement(xa(tagQualifyingProperties))
	qualifying.CreateAttr("xmlns:"+prefixXAdES, NamespaceXAdES)
	qualifying.CreateAttr("Target", "#"+ids.signature)

	signedProps := qualifying.CreateElement(xa(tagSignedProperties))
	signedProps.CreateAttr("Id", ids.signedProperties)
	sigProps := signedProps.CreateElement(xa(tagSignedSignatureProperties))
	sigProps.CreateElement(xa(tagSigningTime)).SetText(signingTime.UTC().Format(SigningTimeLayout))

	certEl := sigProps.CreateElement(xa(tagSigningCertificate)).CreateElement(xa(tagCert))
	certDigest := certEl.CreateElement(xa(tagCertDigest))
	certDigest.CreateElement(ds(tagDigestMethod)).CreateAttr(attrAlgorithm, AlgorithmSHA256)
	certSum := sha256.Sum256(cert.Raw)
	certDigest.CreateElement(ds(tagDigestValue)).SetText(base64.StdEncoding.EncodeToString(certSum[:]))
	issuerSerial := certEl.CreateElement(xa(tagIssuerSerial))
	issuerSerial.CreateElement(ds(tagX509IssuerName)).SetText(cert.Issuer.String())
	issuerSerial.CreateElement(ds(tagX509SerialNumber)).SetText(cert.SerialNumber.String())

	sigProps.CreateElement(xa(tagSignaturePolicyIdentifier)).CreateElement(xa(tagSignaturePolicyImplied))
	return sig
}
