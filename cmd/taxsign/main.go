// Command taxsign validates e-invoicing signing certificates, signs XML
// invoices with enveloped XAdES-EPES signatures and verifies them.
//
// Usage:
//
//	taxsign <command> [options] <args>
//
// Commands:
//
//	inspect  Validate the certificate in a PKCS#12 bundle
//	sign     Sign an XML invoice
//	verify   Verify the signature of a signed XML invoice
//	expiry   Report the expiry notification due for a certificate
//	version  Show version information
//	help     Show help message
//
// Examples:
//
//	# Check a tenant's bundle before enabling signing
//	taxsign inspect -password-env P12_PASSWORD tenant.p12
//
//	# Sign with the bundle named in the configuration
//	taxsign sign -config taxsign.yaml invoice.xml invoice-signed.xml
//
//	# Verify with JSON output
//	taxsign verify -json invoice-signed.xml
package main

import (
	"os"

	"github.com/georgepadayatti/taxsign/cli"
)

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/taxsign
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cli.Version = version
	cli.BuildTime = buildTime

	cli.Run(os.Args)
}
