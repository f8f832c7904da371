// Package cli provides the command-line interface for certificate inspection,
// invoice signing, signature verification and expiry checks.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/georgepadayatti/taxsign/config"
	"github.com/georgepadayatti/taxsign/engine"
	"github.com/georgepadayatti/taxsign/logging"
	"go.uber.org/zap"
)

// Version information
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// osExit is a variable for os.Exit to allow testing
var osExit = os.Exit

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Run executes the CLI with the given arguments.
// This is the main entry point for the CLI.
func Run(args []string) {
	if len(args) < 2 {
		Usage()
		return
	}

	command := args[1]

	switch command {
	case "inspect":
		InspectCommand(args)
	case "sign":
		SignCommand(args)
	case "verify":
		VerifyCommand(args)
	case "expiry":
		ExpiryCommand(args)
	case "version":
		VersionCommand()
	case "help", "-h", "--help":
		Usage()
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		Usage()
		osExit(2)
	}
}

// Usage prints the CLI usage information.
func Usage() {
	fmt.Fprintf(stdout, "taxsign - signing certificate and e-invoice signature tool\n\n")
	fmt.Fprintf(stdout, "Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  inspect  Validate the certificate in a PKCS#12 bundle")
	fmt.Fprintln(stdout, "  sign     Sign an XML invoice with an enveloped XAdES signature")
	fmt.Fprintln(stdout, "  verify   Verify the signature of a signed XML invoice")
	fmt.Fprintln(stdout, "  expiry   Report the expiry notification due for a certificate")
	fmt.Fprintln(stdout, "  version  Show version information")
	fmt.Fprintln(stdout, "  help     Show this help message")
	fmt.Fprintln(stdout, "")
	fmt.Fprintf(stdout, "Use '%s <command> -h' for command-specific help\n", os.Args[0])
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "Examples:")
	fmt.Fprintf(stdout, "  %s inspect -password-env P12_PASSWORD tenant.p12\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s sign -config taxsign.yaml invoice.xml invoice-signed.xml\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s verify -json invoice-signed.xml\n", os.Args[0])
	fmt.Fprintf(stdout, "  %s expiry -tenant acme -not-after 2026-04-01T00:00:00Z\n", os.Args[0])
}

// VersionCommand prints version information.
func VersionCommand() {
	fmt.Fprintf(stdout, "taxsign version %s\n", Version)
	fmt.Fprintf(stdout, "Build time: %s\n", BuildTime)
}

// loadConfig reads the configuration file, or returns defaults when path is
// empty.
func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.DefaultAppConfig(), nil
	}
	return config.LoadAppConfig(path)
}

// newEngine builds an engine and its logger from cfg.
func newEngine(cfg *config.AppConfig) (*engine.Engine, *zap.Logger, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.FromConfig(cfg, logger, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return e, logger, nil
}

// resolvePassword prefers the named environment variable over the flag value.
func resolvePassword(password, env string) string {
	if env != "" {
		if v, ok := os.LookupEnv(env); ok {
			return v
		}
	}
	return password
}

func writeJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	osExit(1)
}
