// Package testpki generates throwaway keys, certificates and PKCS#12 bundles
// for tests.
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"sync"
	"testing"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

var (
	rsaKeysMu sync.Mutex
	rsaKeys   = map[int][]*rsa.PrivateKey{}
)

// oidEmailAddress is PKCS#9 emailAddress, carried in subject names of
// personal signing certificates.
var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

// RSAKey returns the n-th cached RSA key of the given size. Key generation is
// slow, so tests share a small pool.
func RSAKey(t testing.TB, bits, n int) *rsa.PrivateKey {
	t.Helper()
	rsaKeysMu.Lock()
	defer rsaKeysMu.Unlock()

	pool := rsaKeys[bits]
	for len(pool) <= n {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			t.Fatalf("Failed to generate RSA key: %v", err)
		}
		pool = append(pool, key)
	}
	rsaKeys[bits] = pool
	return pool[n]
}

// ECKey generates a P-256 key.
func ECKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("Failed to generate EC key: %v", err)
	}
	return key
}

// CertOptions describes a certificate to create.
type CertOptions struct {
	CommonName   string
	Organization string
	Country      string
	Email        string
	Serial       int64
	NotBefore    time.Time
	NotAfter     time.Time
	KeyUsage     x509.KeyUsage
	IsCA         bool

	// Key is the subject key. Required.
	Key crypto.Signer

	// Parent and ParentKey sign the certificate; self-signed when nil.
	Parent    *x509.Certificate
	ParentKey crypto.Signer
}

// NewCertificate creates and parses a certificate.
func NewCertificate(t testing.TB, opts CertOptions) *x509.Certificate {
	t.Helper()

	serial := big.NewInt(opts.Serial)
	if opts.Serial == 0 {
		var err error
		serial, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
		if err != nil {
			t.Fatalf("Failed to generate serial: %v", err)
		}
	}

	subject := pkix.Name{CommonName: opts.CommonName}
	if opts.Organization != "" {
		subject.Organization = []string{opts.Organization}
	}
	if opts.Country != "" {
		subject.Country = []string{opts.Country}
	}
	if opts.Email != "" {
		subject.ExtraNames = append(subject.ExtraNames, pkix.AttributeTypeAndValue{
			Type:  oidEmailAddress,
			Value: opts.Email,
		})
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      subject,
		NotBefore:    opts.NotBefore,
		NotAfter:     opts.NotAfter,
		KeyUsage:     opts.KeyUsage,
	}
	if opts.IsCA {
		template.IsCA = true
		template.BasicConstraintsValid = true
	}

	parent, parentKey := template, opts.Key
	if opts.Parent != nil {
		parent, parentKey = opts.Parent, opts.ParentKey
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, opts.Key.Public(), parentKey)
	if err != nil {
		t.Fatalf("Failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("Failed to parse certificate: %v", err)
	}
	return cert
}

// SigningCert returns a 2048-bit RSA key and a self-signed end-entity
// certificate valid from an hour before now for one year, asserting digital
// signature and non-repudiation.
func SigningCert(t testing.TB, now time.Time) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key := RSAKey(t, 2048, 0)
	cert := NewCertificate(t, CertOptions{
		CommonName:   "Comercializadora Andina SAS",
		Organization: "Comercializadora Andina SAS",
		Country:      "CO",
		Email:        "facturacion@andina.example",
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		Key:          key,
	})
	return key, cert
}

// IssuedChain returns a CA and an end-entity certificate issued by it.
func IssuedChain(t testing.TB, now time.Time) (leafKey *rsa.PrivateKey, leaf, ca *x509.Certificate) {
	t.Helper()
	caKey := RSAKey(t, 2048, 1)
	ca = NewCertificate(t, CertOptions{
		CommonName:   "Test Issuing CA",
		Organization: "Test Trust Services",
		Country:      "CO",
		NotBefore:    now.Add(-24 * time.Hour),
		NotAfter:     now.Add(2 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		IsCA:         true,
		Key:          caKey,
	})
	leafKey = RSAKey(t, 2048, 0)
	leaf = NewCertificate(t, CertOptions{
		CommonName:   "Comercializadora Andina SAS",
		Organization: "Comercializadora Andina SAS",
		Country:      "CO",
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		Key:          leafKey,
		Parent:       ca,
		ParentKey:    caKey,
	})
	return leafKey, leaf, ca
}

// PKCS12 encodes key, cert and chain with the modern (AES, SHA-256 MAC)
// profile.
func PKCS12(t testing.TB, key crypto.PrivateKey, cert *x509.Certificate, chain []*x509.Certificate, password string) []byte {
	t.Helper()
	data, err := pkcs12.Modern.Encode(key, cert, chain, password)
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12: %v", err)
	}
	return data
}

// PasswordlessPKCS12 encodes an unencrypted bundle without integrity MAC.
func PasswordlessPKCS12(t testing.TB, key crypto.PrivateKey, cert *x509.Certificate) []byte {
	t.Helper()
	data, err := pkcs12.Passwordless.Encode(key, cert, nil, "")
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12: %v", err)
	}
	return data
}

// TrustStorePKCS12 encodes certificates only, without a private key.
func TrustStorePKCS12(t testing.TB, certs []*x509.Certificate, password string) []byte {
	t.Helper()
	data, err := pkcs12.Modern.EncodeTrustStore(certs, password)
	if err != nil {
		t.Fatalf("Failed to encode PKCS#12 trust store: %v", err)
	}
	return data
}
