package certvalidator

import (
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/georgepadayatti/taxsign/keys"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// Name is the structured part of a distinguished name that tenants care about.
type Name struct {
	CommonName   string `json:"common_name"`
	Organization string `json:"organization,omitempty"`
	Country      string `json:"country,omitempty"`
	Email        string `json:"email,omitempty"`

	// DN is the full RFC 4514 string.
	DN string `json:"dn"`
}

// KeyUsage lists the usages a certificate declares.
type KeyUsage struct {
	// Present is false when the certificate has no key usage extension.
	Present          bool `json:"present"`
	DigitalSignature bool `json:"digital_signature"`
	NonRepudiation   bool `json:"non_repudiation"`
	KeyEncipherment  bool `json:"key_encipherment"`
	DataEncipherment bool `json:"data_encipherment"`
	KeyAgreement     bool `json:"key_agreement"`
	CertSign         bool `json:"cert_sign"`
	CRLSign          bool `json:"crl_sign"`
	IsCA             bool `json:"is_ca"`
}

// Fingerprint is a SHA-256 certificate fingerprint.
type Fingerprint [sha256.Size]byte

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// MarshalJSON encodes the fingerprint as hex.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// Facts is a read-only projection of a certificate.
type Facts struct {
	Subject            Name        `json:"subject"`
	Issuer             Name        `json:"issuer"`
	SerialNumber       string      `json:"serial_number"`
	NotBefore          time.Time   `json:"not_before"`
	NotAfter           time.Time   `json:"not_after"`
	Fingerprint        Fingerprint `json:"fingerprint_sha256"`
	KeyUsage           KeyUsage    `json:"key_usage"`
	PublicKeyAlgorithm string      `json:"public_key_algorithm"`
	PublicKeySize      int         `json:"public_key_size"`
	SignatureAlgorithm string      `json:"signature_algorithm"`
}

// FactsOf extracts the facts of cert.
func FactsOf(cert *x509.Certificate) *Facts {
	keyInfo := keys.GetKeyInfo(cert.PublicKey)
	return &Facts{
		Subject:            nameOf(cert.Subject, cert.EmailAddresses),
		Issuer:             nameOf(cert.Issuer, nil),
		SerialNumber:       cert.SerialNumber.String(),
		NotBefore:          cert.NotBefore.UTC(),
		NotAfter:           cert.NotAfter.UTC(),
		Fingerprint:        sha256.Sum256(cert.Raw),
		KeyUsage:           keyUsageOf(cert),
		PublicKeyAlgorithm: keyInfo.Algorithm,
		PublicKeySize:      keyInfo.BitSize,
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
	}
}

// ValidityPeriod returns the length of the validity window.
func (f *Facts) ValidityPeriod() time.Duration {
	return f.NotAfter.Sub(f.NotBefore)
}

func nameOf(n pkix.Name, sanEmails []string) Name {
	name := Name{
		CommonName: n.CommonName,
		DN:         n.String(),
	}
	if len(n.Organization) > 0 {
		name.Organization = n.Organization[0]
	}
	if len(n.Country) > 0 {
		name.Country = n.Country[0]
	}
	for _, atv := range n.Names {
		if atv.Type.Equal(oidEmailAddress) {
			if s, ok := atv.Value.(string); ok {
				name.Email = s
				break
			}
		}
	}
	if name.Email == "" && len(sanEmails) > 0 {
		name.Email = sanEmails[0]
	}
	return name
}

func keyUsageOf(cert *x509.Certificate) KeyUsage {
	ku := cert.KeyUsage
	return KeyUsage{
		Present:          hasExtension(cert, oidExtensionKeyUsage),
		DigitalSignature: ku&x509.KeyUsageDigitalSignature != 0,
		NonRepudiation:   ku&x509.KeyUsageContentCommitment != 0,
		KeyEncipherment:  ku&x509.KeyUsageKeyEncipherment != 0,
		DataEncipherment: ku&x509.KeyUsageDataEncipherment != 0,
		KeyAgreement:     ku&x509.KeyUsageKeyAgreement != 0,
		CertSign:         ku&x509.KeyUsageCertSign != 0,
		CRLSign:          ku&x509.KeyUsageCRLSign != 0,
		IsCA:             cert.BasicConstraintsValid && cert.IsCA,
	}
}

var oidExtensionKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}

func hasExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return true
		}
	}
	return false
}
