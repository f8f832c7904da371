package keys

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/georgepadayatti/taxsign/kind"
	"github.com/georgepadayatti/taxsign/testpki"
	"software.sslmate.com/src/go-pkcs12"
)

func TestLoadPKCS12RoundTrip(t *testing.T) {
	key, cert := testpki.SigningCert(t, time.Now())
	data := testpki.PKCS12(t, key, cert, nil, "s3cret")

	bundle, err := LoadPKCS12(data, "s3cret")
	if err != nil {
		t.Fatalf("LoadPKCS12 failed: %v", err)
	}

	if sha256.Sum256(bundle.Certificate.Raw) != sha256.Sum256(cert.Raw) {
		t.Errorf("fingerprint of loaded certificate differs from original")
	}
	if !PublicKeysEqual(bundle.PrivateKey.Public(), &key.PublicKey) {
		t.Errorf("loaded private key differs from original")
	}
	if len(bundle.Chain) != 0 {
		t.Errorf("Expected empty chain, got %d certificates", len(bundle.Chain))
	}
}

func TestLoadPKCS12WithChain(t *testing.T) {
	leafKey, leaf, ca := testpki.IssuedChain(t, time.Now())
	data := testpki.PKCS12(t, leafKey, leaf, []*x509.Certificate{ca}, "pw")

	bundle, err := LoadPKCS12(data, "pw")
	if err != nil {
		t.Fatalf("LoadPKCS12 failed: %v", err)
	}
	if !bytes.Equal(bundle.Certificate.Raw, leaf.Raw) {
		t.Errorf("Expected the leaf certificate as end entity")
	}
	if len(bundle.Chain) != 1 || !bytes.Equal(bundle.Chain[0].Raw, ca.Raw) {
		t.Errorf("Expected CA certificate in chain, got %d certificates", len(bundle.Chain))
	}
}

func TestLoadPKCS12SelectsLeafMatchingKey(t *testing.T) {
	leafKey, leaf, ca := testpki.IssuedChain(t, time.Now())

	// CA first, leaf in the chain position.
	data, err := pkcs12.Modern.Encode(leafKey, ca, []*x509.Certificate{leaf}, "pw")
	if err != nil {
		t.Skipf("encoder rejected mismatched ordering: %v", err)
	}

	bundle, err := LoadPKCS12(data, "pw")
	if err != nil {
		t.Fatalf("LoadPKCS12 failed: %v", err)
	}
	if !bytes.Equal(bundle.Certificate.Raw, leaf.Raw) {
		t.Errorf("Expected certificate matching the private key as end entity")
	}
	if len(bundle.Chain) != 1 || !bytes.Equal(bundle.Chain[0].Raw, ca.Raw) {
		t.Errorf("Expected CA certificate moved to chain")
	}
}

func TestLoadPKCS12WrongPassword(t *testing.T) {
	key, cert := testpki.SigningCert(t, time.Now())
	data := testpki.PKCS12(t, key, cert, nil, "correct horse")

	_, err := LoadPKCS12(data, "battery staple")
	if err == nil {
		t.Fatal("Expected error for wrong password")
	}
	if !errors.Is(err, kind.BadPassword) {
		t.Errorf("Expected BadPassword, got %v", err)
	}
	if errors.Is(err, kind.Malformed) {
		t.Errorf("Wrong password must not be reported as Malformed")
	}
	if !errors.Is(err, ErrIncorrectPassword) {
		t.Errorf("Expected ErrIncorrectPassword in chain, got %v", err)
	}
}

func TestLoadPKCS12EmptyPasswordOnEncryptedBundle(t *testing.T) {
	key, cert := testpki.SigningCert(t, time.Now())
	data := testpki.PKCS12(t, key, cert, nil, "s3cret")

	_, err := LoadPKCS12(data, "")
	if !errors.Is(err, kind.BadPassword) {
		t.Fatalf("Expected BadPassword, got %v", err)
	}
	if !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("Expected ErrPasswordRequired for empty password, got %v", err)
	}
}

func TestLoadPKCS12Passwordless(t *testing.T) {
	key, cert := testpki.SigningCert(t, time.Now())
	data := testpki.PasswordlessPKCS12(t, key, cert)

	bundle, err := LoadPKCS12(data, "")
	if err != nil {
		t.Fatalf("LoadPKCS12 failed for unencrypted bundle: %v", err)
	}
	if !bytes.Equal(bundle.Certificate.Raw, cert.Raw) {
		t.Errorf("Unexpected certificate loaded")
	}
}

func TestLoadPKCS12Malformed(t *testing.T) {
	key, cert := testpki.SigningCert(t, time.Now())
	valid := testpki.PKCS12(t, key, cert, nil, "pw")

	garbage := make([]byte, 256)
	if _, err := rand.Read(garbage); err != nil {
		t.Fatalf("rand: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Short", []byte{0x30, 0x03}},
		{"Garbage", garbage},
		{"Truncated", valid[:len(valid)/3]},
		{"PEM text", []byte("-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPKCS12(tt.data, "pw")
			if !errors.Is(err, kind.Malformed) {
				t.Errorf("Expected Malformed, got %v", err)
			}
		})
	}
}

func TestLoadPKCS12WithoutPrivateKey(t *testing.T) {
	_, cert := testpki.SigningCert(t, time.Now())
	data := testpki.TrustStorePKCS12(t, []*x509.Certificate{cert}, "pw")

	_, err := LoadPKCS12(data, "pw")
	if !errors.Is(err, kind.MissingKeyOrCert) {
		t.Errorf("Expected MissingKeyOrCert, got %v", err)
	}
}

func TestLoadPKCS12KeyCertMismatch(t *testing.T) {
	_, cert := testpki.SigningCert(t, time.Now())
	otherKey := testpki.RSAKey(t, 2048, 2)

	data, err := pkcs12.Modern.Encode(otherKey, cert, nil, "pw")
	if err != nil {
		t.Skipf("encoder rejected mismatched key: %v", err)
	}

	_, err = LoadPKCS12(data, "pw")
	if !errors.Is(err, kind.MissingKeyOrCert) {
		t.Fatalf("Expected MissingKeyOrCert, got %v", err)
	}
	if !errors.Is(err, ErrKeyCertMismatch) {
		t.Errorf("Expected ErrKeyCertMismatch, got %v", err)
	}
}

func TestLoadPKCS12DecomposedPassword(t *testing.T) {
	key, cert := testpki.SigningCert(t, time.Now())
	composed := "contrase\u00f1a"
	decomposed := "contrasen\u0303a"
	data := testpki.PKCS12(t, key, cert, nil, composed)

	if _, err := LoadPKCS12(data, decomposed); err != nil {
		t.Errorf("Expected decomposed password to be accepted, got %v", err)
	}
}

func TestGetKeyInfo(t *testing.T) {
	rsaKey := testpki.RSAKey(t, 2048, 0)
	ecKey := testpki.ECKey(t)

	tests := []struct {
		name      string
		info      KeyInfo
		algorithm string
		bits      int
	}{
		{"RSA", GetKeyInfo(&rsaKey.PublicKey), "RSA", 2048},
		{"ECDSA", GetKeyInfo(&ecKey.PublicKey), "ECDSA", 256},
		{"Unknown", GetKeyInfo("not a key"), "Unknown", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.info.Algorithm != tt.algorithm {
				t.Errorf("Algorithm = %s, want %s", tt.info.Algorithm, tt.algorithm)
			}
			if tt.info.BitSize != tt.bits {
				t.Errorf("BitSize = %d, want %d", tt.info.BitSize, tt.bits)
			}
		})
	}
}
