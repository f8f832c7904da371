package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/georgepadayatti/taxsign/config"
)

// SignOptions contains options for the sign command.
type SignOptions struct {
	ConfigFile  string
	Password    string
	PasswordEnv string
	JSON        bool
}

// SignCommand implements the 'sign' command.
func SignCommand(args []string) {
	signFlags := flag.NewFlagSet("sign", flag.ContinueOnError)
	signFlags.SetOutput(stderr)

	var opts SignOptions
	signFlags.StringVar(&opts.ConfigFile, "config", "", "Path to the YAML configuration file")
	signFlags.StringVar(&opts.Password, "password", "", "Bundle password (overrides the configured passphrase)")
	signFlags.StringVar(&opts.PasswordEnv, "password-env", "", "Environment variable holding the bundle password")
	signFlags.BoolVar(&opts.JSON, "json", false, "Print the validation report as JSON when signing is refused")

	signFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s sign [options] <input.xml> <output.xml> [bundle.p12]\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Sign an XML invoice with an enveloped XAdES-EPES signature.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Arguments:")
		fmt.Fprintln(stdout, "  input.xml   Invoice to sign")
		fmt.Fprintln(stdout, "  output.xml  Output file for the signed invoice")
		fmt.Fprintln(stdout, "  bundle.p12  PKCS#12 bundle (default: signing.pkcs12.pfx-file from the configuration)")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		signFlags.SetOutput(stdout)
		signFlags.PrintDefaults()
		signFlags.SetOutput(stderr)
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Examples:")
		fmt.Fprintf(stdout, "  %s sign -password-env P12_PASSWORD invoice.xml signed.xml tenant.p12\n", os.Args[0])
		fmt.Fprintf(stdout, "  %s sign -config taxsign.yaml invoice.xml signed.xml\n", os.Args[0])
	}

	if err := signFlags.Parse(args[2:]); err != nil {
		osExit(2)
		return
	}
	if signFlags.NArg() < 2 || signFlags.NArg() > 3 {
		signFlags.Usage()
		osExit(2)
		return
	}
	inputPath := signFlags.Arg(0)
	outputPath := signFlags.Arg(1)

	cfg, err := loadConfig(opts.ConfigFile)
	if err != nil {
		fatalf("%v", err)
		return
	}

	bundle, password, err := signingBundle(signFlags.Arg(2), cfg.Signing.PKCS12)
	if err != nil {
		fatalf("%v", err)
		return
	}
	if opts.Password != "" || opts.PasswordEnv != "" {
		password = resolvePassword(opts.Password, opts.PasswordEnv)
	}

	doc, err := os.ReadFile(inputPath)
	if err != nil {
		fatalf("failed to read input file: %v", err)
		return
	}

	e, logger, err := newEngine(cfg)
	if err != nil {
		fatalf("%v", err)
		return
	}
	defer e.Close()
	defer logger.Sync()

	signed, result, err := e.Sign(doc, bundle, password)
	if err != nil {
		if result != nil {
			if opts.JSON {
				_ = writeJSON(result)
			} else {
				printResult(result)
			}
		}
		fatalf("failed to sign document: %v", err)
		return
	}

	if err := os.WriteFile(outputPath, signed, 0644); err != nil {
		fatalf("failed to write output file: %v", err)
		return
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(stderr, "Warning: %s\n", w)
	}
	fmt.Fprintf(stdout, "Successfully signed invoice: %s\n", outputPath)
}

// signingBundle reads the bundle named on the command line, or the configured
// one when path is empty.
func signingBundle(path string, pc *config.PKCS12SignatureConfig) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read bundle: %w", err)
		}
		var password string
		if pc != nil {
			password = pc.Passphrase()
		}
		return data, password, nil
	}
	if pc == nil {
		return nil, "", fmt.Errorf("no bundle given and signing.pkcs12 is not configured")
	}
	data, err := pc.ReadBundle()
	if err != nil {
		return nil, "", err
	}
	return data, pc.Passphrase(), nil
}
