package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/georgepadayatti/taxsign/certvalidator"
)

// InspectOptions contains options for the inspect command.
type InspectOptions struct {
	ConfigFile  string
	Password    string
	PasswordEnv string
	JSON        bool
}

// InspectCommand implements the 'inspect' command.
func InspectCommand(args []string) {
	inspectFlags := flag.NewFlagSet("inspect", flag.ContinueOnError)
	inspectFlags.SetOutput(stderr)

	var opts InspectOptions
	inspectFlags.StringVar(&opts.ConfigFile, "config", "", "Path to the YAML configuration file")
	inspectFlags.StringVar(&opts.Password, "password", "", "Bundle password")
	inspectFlags.StringVar(&opts.PasswordEnv, "password-env", "", "Environment variable holding the bundle password")
	inspectFlags.BoolVar(&opts.JSON, "json", false, "Output the validation report in JSON format")

	inspectFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s inspect [options] <bundle.p12>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Load a PKCS#12 bundle and validate its signing certificate.")
		fmt.Fprintln(stdout, "Exits with status 1 when the certificate cannot be used for signing.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		inspectFlags.SetOutput(stdout)
		inspectFlags.PrintDefaults()
		inspectFlags.SetOutput(stderr)
	}

	if err := inspectFlags.Parse(args[2:]); err != nil {
		osExit(2)
		return
	}
	if inspectFlags.NArg() != 1 {
		inspectFlags.Usage()
		osExit(2)
		return
	}

	data, err := os.ReadFile(inspectFlags.Arg(0))
	if err != nil {
		fatalf("failed to read bundle: %v", err)
		return
	}

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		fatalf("%v", err)
		return
	}
	e, logger, err := newEngine(cfg)
	if err != nil {
		fatalf("%v", err)
		return
	}
	defer e.Close()
	defer logger.Sync()

	result, err := e.Inspect(data, resolvePassword(opts.Password, opts.PasswordEnv))
	if err != nil {
		fatalf("%v", err)
		return
	}

	if opts.JSON {
		if err := writeJSON(result); err != nil {
			fatalf("%v", err)
			return
		}
	} else {
		printResult(result)
	}
	if !result.IsValid {
		osExit(1)
	}
}

func printResult(r *certvalidator.Result) {
	if f := r.Facts; f != nil {
		fmt.Fprintf(stdout, "Subject:      %s\n", f.Subject.DN)
		fmt.Fprintf(stdout, "Issuer:       %s\n", f.Issuer.DN)
		fmt.Fprintf(stdout, "Serial:       %s\n", f.SerialNumber)
		fmt.Fprintf(stdout, "Valid from:   %s\n", f.NotBefore.Format(time.RFC3339))
		fmt.Fprintf(stdout, "Valid until:  %s (%d days, %s)\n", f.NotAfter.Format(time.RFC3339), r.Expiry.DaysUntilExpiry, r.Expiry.Tier)
		fmt.Fprintf(stdout, "Key:          %s %d\n", f.PublicKeyAlgorithm, f.PublicKeySize)
		fmt.Fprintf(stdout, "Signature:    %s\n", f.SignatureAlgorithm)
		fmt.Fprintf(stdout, "Fingerprint:  %s\n", f.Fingerprint)
	}
	if r.IsValid {
		fmt.Fprintln(stdout, "Status:       VALID")
	} else {
		fmt.Fprintln(stdout, "Status:       INVALID")
	}
	for _, e := range r.Errors {
		fmt.Fprintf(stdout, "  error:   %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(stdout, "  warning: %s\n", w)
	}
}
