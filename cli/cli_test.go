package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/georgepadayatti/taxsign/testpki"
)

const (
	testPassword = "s3cret"
	invoiceXML   = `<Invoice xmlns="urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"><ID>SETP990000002</ID></Invoice>`
)

// runCLI runs args with captured output and returns the exit code, or -1 if
// osExit was not called.
func runCLI(t *testing.T, args ...string) (code int, out, errOut string) {
	t.Helper()

	var outBuf, errBuf bytes.Buffer
	oldOut, oldErr, oldExit := stdout, stderr, osExit
	t.Cleanup(func() { stdout, stderr, osExit = oldOut, oldErr, oldExit })

	code = -1
	stdout, stderr = &outBuf, &errBuf
	osExit = func(c int) {
		if code == -1 {
			code = c
		}
	}

	Run(append([]string{"taxsign"}, args...))
	return code, outBuf.String(), errBuf.String()
}

// writeFixtures creates a bundle, an invoice and a quiet config in a temp dir.
func writeFixtures(t *testing.T) (dir, bundlePath, invoicePath, configPath string) {
	t.Helper()
	dir = t.TempDir()

	key, cert := testpki.SigningCert(t, time.Now())
	bundlePath = filepath.Join(dir, "tenant.p12")
	if err := os.WriteFile(bundlePath, testpki.PKCS12(t, key, cert, nil, testPassword), 0600); err != nil {
		t.Fatal(err)
	}
	invoicePath = filepath.Join(dir, "invoice.xml")
	if err := os.WriteFile(invoicePath, []byte(invoiceXML), 0600); err != nil {
		t.Fatal(err)
	}
	configPath = filepath.Join(dir, "taxsign.yaml")
	cfg := "logging:\n  level: error\nsigning:\n  pkcs12:\n    pfx-file: " + bundlePath + "\n    pfx-passphrase-env: TAXSIGN_TEST_PASSWORD\n"
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return dir, bundlePath, invoicePath, configPath
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	if code != -1 {
		t.Errorf("Expected no exit, got %d", code)
	}
	if !strings.Contains(out, "taxsign version dev") {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "frobnicate")
	if code != 2 {
		t.Errorf("Expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut, "Unknown command: frobnicate") {
		t.Errorf("Unexpected stderr: %q", errOut)
	}
}

func TestInspectCommand(t *testing.T) {
	_, bundle, _, configPath := writeFixtures(t)

	t.Run("Text", func(t *testing.T) {
		code, out, _ := runCLI(t, "inspect", "-config", configPath, "-password", testPassword, bundle)
		if code != -1 {
			t.Fatalf("Expected success, got exit %d", code)
		}
		if !strings.Contains(out, "Status:       VALID") {
			t.Errorf("Unexpected output: %q", out)
		}
	})

	t.Run("JSON", func(t *testing.T) {
		t.Setenv("TAXSIGN_P12", testPassword)
		code, out, _ := runCLI(t, "inspect", "-config", configPath, "-password-env", "TAXSIGN_P12", "-json", bundle)
		if code != -1 {
			t.Fatalf("Expected success, got exit %d", code)
		}
		var report struct {
			IsValid bool     `json:"is_valid"`
			Errors  []string `json:"errors"`
		}
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("Invalid JSON output: %v", err)
		}
		if !report.IsValid || len(report.Errors) != 0 {
			t.Errorf("Unexpected report: %+v", report)
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		code, _, errOut := runCLI(t, "inspect", "-config", configPath, "-password", "nope", bundle)
		if code != 1 {
			t.Fatalf("Expected exit 1, got %d", code)
		}
		if !strings.Contains(errOut, "BAD_PASSWORD") {
			t.Errorf("Unexpected stderr: %q", errOut)
		}
	})

	t.Run("MissingArgument", func(t *testing.T) {
		code, _, _ := runCLI(t, "inspect")
		if code != 2 {
			t.Errorf("Expected exit 2, got %d", code)
		}
	})
}

func TestSignAndVerifyCommands(t *testing.T) {
	dir, bundle, invoice, configPath := writeFixtures(t)
	signed := filepath.Join(dir, "signed.xml")

	code, out, errOut := runCLI(t, "sign", "-config", configPath, "-password", testPassword, invoice, signed, bundle)
	if code != -1 {
		t.Fatalf("Sign exited %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Successfully signed invoice") {
		t.Errorf("Unexpected output: %q", out)
	}

	code, out, _ = runCLI(t, "verify", "-json", signed)
	if code != -1 {
		t.Fatalf("Verify exited %d: %s", code, out)
	}
	var v struct {
		StructurallyValid bool `json:"is_structurally_valid"`
		SignatureValid    bool `json:"is_signature_valid"`
	}
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if !v.StructurallyValid || !v.SignatureValid {
		t.Errorf("Expected a valid signature, got %+v", v)
	}
}

func TestSignCommandUsesConfiguredBundle(t *testing.T) {
	dir, _, invoice, configPath := writeFixtures(t)
	t.Setenv("TAXSIGN_TEST_PASSWORD", testPassword)
	signed := filepath.Join(dir, "signed.xml")

	code, _, errOut := runCLI(t, "sign", "-config", configPath, invoice, signed)
	if code != -1 {
		t.Fatalf("Sign exited %d: %s", code, errOut)
	}
	if _, err := os.Stat(signed); err != nil {
		t.Errorf("Signed file not written: %v", err)
	}
}

func TestVerifyCommandUnsigned(t *testing.T) {
	_, _, invoice, _ := writeFixtures(t)

	code, out, _ := runCLI(t, "verify", invoice)
	if code != 1 {
		t.Fatalf("Expected exit 1, got %d", code)
	}
	if !strings.Contains(out, "MISSING_SIGNATURE_ELEMENT") {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestExpiryCommand(t *testing.T) {
	_, bundle, _, configPath := writeFixtures(t)

	t.Run("NotAfter", func(t *testing.T) {
		notAfter := time.Now().Add(3*24*time.Hour + time.Hour).UTC().Format(time.RFC3339)
		code, out, _ := runCLI(t, "expiry", "-config", configPath, "-tenant", "acme", "-not-after", notAfter)
		if code != -1 {
			t.Fatalf("Expected success, got exit %d", code)
		}
		if !strings.Contains(out, "[high] Signing certificate expires in 3 days") {
			t.Errorf("Unexpected output: %q", out)
		}
	})

	t.Run("Bundle", func(t *testing.T) {
		code, out, _ := runCLI(t, "expiry", "-config", configPath, "-tenant", "acme", "-password", testPassword, "-json", bundle)
		if code != -1 {
			t.Fatalf("Expected success, got exit %d", code)
		}
		var report struct {
			Due bool `json:"due"`
		}
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("Invalid JSON output: %v", err)
		}
		if report.Due {
			t.Error("Expected no notification for a certificate valid for a year")
		}
	})

	t.Run("MissingTenant", func(t *testing.T) {
		code, _, _ := runCLI(t, "expiry", "-not-after", "2026-04-01T00:00:00Z")
		if code != 2 {
			t.Errorf("Expected exit 2, got %d", code)
		}
	})
}
