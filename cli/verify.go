package cli

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/georgepadayatti/taxsign/engine"
	"github.com/georgepadayatti/taxsign/xades"
)

// VerifyOptions contains options for the verify command.
type VerifyOptions struct {
	JSON bool
}

// VerifyCommand implements the 'verify' command.
func VerifyCommand(args []string) {
	verifyFlags := flag.NewFlagSet("verify", flag.ContinueOnError)
	verifyFlags.SetOutput(stderr)

	var opts VerifyOptions
	verifyFlags.BoolVar(&opts.JSON, "json", false, "Output results in JSON format")

	verifyFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s verify [options] <signed.xml>\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Verify the enveloped signature of a signed XML invoice.")
		fmt.Fprintln(stdout, "Exits with status 1 when the signature is missing, malformed or broken.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		verifyFlags.SetOutput(stdout)
		verifyFlags.PrintDefaults()
		verifyFlags.SetOutput(stderr)
	}

	if err := verifyFlags.Parse(args[2:]); err != nil {
		osExit(2)
		return
	}
	if verifyFlags.NArg() != 1 {
		verifyFlags.Usage()
		osExit(2)
		return
	}

	doc, err := os.ReadFile(verifyFlags.Arg(0))
	if err != nil {
		fatalf("failed to read input file: %v", err)
		return
	}

	v := engine.New(engine.Options{}).Verify(doc)
	if opts.JSON {
		if err := writeJSON(v); err != nil {
			fatalf("%v", err)
			return
		}
	} else {
		printVerification(v)
	}
	if !v.Valid() {
		osExit(1)
	}
}

func printVerification(v *xades.Verification) {
	if v.Valid() {
		fmt.Fprintln(stdout, "Status:       VALID")
	} else {
		fmt.Fprintln(stdout, "Status:       INVALID")
	}
	fmt.Fprintf(stdout, "Structure:    %s\n", okString(v.StructurallyValid))
	fmt.Fprintf(stdout, "Signature:    %s\n", okString(v.SignatureValid))
	if v.SigningTime != nil {
		fmt.Fprintf(stdout, "Signed at:    %s\n", v.SigningTime.Format(time.RFC3339))
	}
	if f := v.Facts; f != nil {
		fmt.Fprintf(stdout, "Signer:       %s\n", f.Subject.DN)
		fmt.Fprintf(stdout, "Issuer:       %s\n", f.Issuer.DN)
		fmt.Fprintf(stdout, "Valid until:  %s\n", f.NotAfter.Format(time.RFC3339))
	}
	for _, e := range v.Errors {
		fmt.Fprintf(stdout, "  error:   %s\n", e)
	}
}

func okString(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
