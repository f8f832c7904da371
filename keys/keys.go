// Package keys loads tenant signing credentials from PKCS#12 bundles.
//
// The loader is a pure parse: it performs no I/O and keeps no state. Callers
// own the returned key material and are responsible for storing it encrypted.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/georgepadayatti/taxsign/kind"
	"golang.org/x/text/unicode/norm"
	"software.sslmate.com/src/go-pkcs12"
)

// Common errors
var (
	ErrEmptyBundle       = errors.New("bundle data is empty")
	ErrPasswordRequired  = errors.New("bundle is encrypted and no password was supplied")
	ErrIncorrectPassword = errors.New("bundle password is incorrect")
	ErrNoKeyFound        = errors.New("no private key found in bundle")
	ErrNoCertFound       = errors.New("no certificate found in bundle")
	ErrKeyCertMismatch   = errors.New("no certificate in bundle matches the private key")
	ErrUnknownKeyType    = errors.New("unknown private key type")
)

// PrivateKey represents a private key that can be used for signing.
type PrivateKey interface {
	crypto.Signer
}

// Bundle is the decoded content of a PKCS#12 container.
type Bundle struct {
	// PrivateKey is the tenant's signing key.
	PrivateKey PrivateKey

	// Certificate is the end-entity certificate matching PrivateKey.
	Certificate *x509.Certificate

	// Chain holds the remaining certificates in bundle order.
	Chain []*x509.Certificate
}

// LoadPKCS12 decodes a PKCS#12 bundle protected by password.
//
// Failures are *kind.Failure values of kind Malformed, BadPassword or
// MissingKeyOrCert.
func LoadPKCS12(data []byte, password string) (*Bundle, error) {
	if len(data) == 0 {
		return nil, kind.Fail(kind.Malformed, ErrEmptyBundle)
	}

	key, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil && isPasswordError(err) && !norm.NFC.IsNormalString(password) {
		// Passwords typed on some platforms arrive decomposed.
		key, cert, chain, err = pkcs12.DecodeChain(data, norm.NFC.String(password))
	}
	if err != nil {
		return nil, classifyDecodeError(err, password)
	}

	signer, err := toPrivateKey(key)
	if err != nil {
		return nil, kind.Fail(kind.MissingKeyOrCert, err)
	}

	leaf, rest, err := selectLeaf(signer, cert, chain)
	if err != nil {
		return nil, kind.Fail(kind.MissingKeyOrCert, err)
	}

	return &Bundle{PrivateKey: signer, Certificate: leaf, Chain: rest}, nil
}

// classifyDecodeError maps go-pkcs12 errors onto the loading taxonomy.
func classifyDecodeError(err error, password string) error {
	switch {
	case isPasswordError(err):
		if password == "" {
			return kind.Fail(kind.BadPassword, fmt.Errorf("%w: %v", ErrPasswordRequired, err))
		}
		return kind.Fail(kind.BadPassword, fmt.Errorf("%w: %v", ErrIncorrectPassword, err))
	case strings.Contains(err.Error(), "private key missing"),
		strings.Contains(err.Error(), "expected exactly one key bag"):
		return kind.Fail(kind.MissingKeyOrCert, fmt.Errorf("%w: %v", ErrNoKeyFound, err))
	case strings.Contains(err.Error(), "certificate missing"):
		return kind.Fail(kind.MissingKeyOrCert, fmt.Errorf("%w: %v", ErrNoCertFound, err))
	default:
		return kind.Fail(kind.Malformed, err)
	}
}

func isPasswordError(err error) bool {
	return errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, pkcs12.ErrDecryption)
}

// selectLeaf returns the certificate whose public key matches signer and the
// remaining certificates. Bundles exported by some tools list the issuing CA
// before the end-entity certificate.
func selectLeaf(signer PrivateKey, first *x509.Certificate, others []*x509.Certificate) (*x509.Certificate, []*x509.Certificate, error) {
	all := make([]*x509.Certificate, 0, len(others)+1)
	if first != nil {
		all = append(all, first)
	}
	all = append(all, others...)
	if len(all) == 0 {
		return nil, nil, ErrNoCertFound
	}

	for i, cert := range all {
		if !PublicKeysEqual(signer.Public(), cert.PublicKey) {
			continue
		}
		rest := make([]*x509.Certificate, 0, len(all)-1)
		rest = append(rest, all[:i]...)
		rest = append(rest, all[i+1:]...)
		return cert, rest, nil
	}
	return nil, nil, ErrKeyCertMismatch
}

// PublicKeysEqual reports whether two public keys are the same key.
func PublicKeysEqual(a, b crypto.PublicKey) bool {
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && eq.Equal(b)
}

// toPrivateKey converts a parsed key interface to our PrivateKey type.
func toPrivateKey(key interface{}) (PrivateKey, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return k, nil
	case *ecdsa.PrivateKey:
		return k, nil
	case ed25519.PrivateKey:
		return k, nil
	case nil:
		return nil, ErrNoKeyFound
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownKeyType, key)
	}
}

// KeyInfo contains information about a public key.
type KeyInfo struct {
	// Algorithm is the key algorithm (RSA, ECDSA, Ed25519)
	Algorithm string

	// BitSize is the key size in bits
	BitSize int

	// Curve is the elliptic curve name (for ECDSA)
	Curve string
}

// GetKeyInfo returns information about a public key.
func GetKeyInfo(pub crypto.PublicKey) KeyInfo {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return KeyInfo{
			Algorithm: "RSA",
			BitSize:   k.N.BitLen(),
		}
	case *ecdsa.PublicKey:
		return KeyInfo{
			Algorithm: "ECDSA",
			BitSize:   k.Curve.Params().BitSize,
			Curve:     k.Curve.Params().Name,
		}
	case ed25519.PublicKey:
		return KeyInfo{
			Algorithm: "Ed25519",
			BitSize:   256,
		}
	default:
		return KeyInfo{Algorithm: "Unknown"}
	}
}
