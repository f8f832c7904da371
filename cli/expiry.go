package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/georgepadayatti/taxsign/notify"
)

// ExpiryOptions contains options for the expiry command.
type ExpiryOptions struct {
	ConfigFile  string
	TenantID    string
	NotAfter    string
	Password    string
	PasswordEnv string
	JSON        bool
}

// ExpiryCommand implements the 'expiry' command.
func ExpiryCommand(args []string) {
	expiryFlags := flag.NewFlagSet("expiry", flag.ContinueOnError)
	expiryFlags.SetOutput(stderr)

	var opts ExpiryOptions
	expiryFlags.StringVar(&opts.ConfigFile, "config", "", "Path to the YAML configuration file")
	expiryFlags.StringVar(&opts.TenantID, "tenant", "", "Tenant identifier (required)")
	expiryFlags.StringVar(&opts.NotAfter, "not-after", "", "Certificate expiry as RFC 3339 time, instead of reading a bundle")
	expiryFlags.StringVar(&opts.Password, "password", "", "Bundle password")
	expiryFlags.StringVar(&opts.PasswordEnv, "password-env", "", "Environment variable holding the bundle password")
	expiryFlags.BoolVar(&opts.JSON, "json", false, "Output the notification in JSON format")

	expiryFlags.Usage = func() {
		fmt.Fprintf(stdout, "Usage: %s expiry [options] -tenant <id> (-not-after <time> | <bundle.p12>)\n\n", os.Args[0])
		fmt.Fprintln(stdout, "Report the expiry notification due for a tenant certificate.")
		fmt.Fprintln(stdout, "Repeats are suppressed through the configured dedup store.")
		fmt.Fprintln(stdout, "")
		fmt.Fprintln(stdout, "Options:")
		expiryFlags.SetOutput(stdout)
		expiryFlags.PrintDefaults()
		expiryFlags.SetOutput(stderr)
	}

	if err := expiryFlags.Parse(args[2:]); err != nil {
		osExit(2)
		return
	}
	if opts.TenantID == "" || (opts.NotAfter == "") == (expiryFlags.NArg() == 0) {
		expiryFlags.Usage()
		osExit(2)
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

	var notAfter time.Time
	if opts.NotAfter != "" {
		notAfter, err = time.Parse(time.RFC3339, opts.NotAfter)
		if err != nil {
			fatalf("invalid -not-after: %v", err)
			return
		}
	} else {
		data, err := os.ReadFile(expiryFlags.Arg(0))
		if err != nil {
			fatalf("failed to read bundle: %v", err)
			return
		}
		result, err := e.Inspect(data, resolvePassword(opts.Password, opts.PasswordEnv))
		if err != nil {
			fatalf("%v", err)
			return
		}
		notAfter = result.Facts.NotAfter
	}

	event, ok := e.CheckExpiry(context.Background(), opts.TenantID, notAfter)
	if opts.JSON {
		if err := writeJSON(struct {
			Due   bool          `json:"due"`
			Event *notify.Event `json:"event,omitempty"`
		}{ok, event}); err != nil {
			fatalf("%v", err)
		}
		return
	}
	if !ok {
		fmt.Fprintln(stdout, "No notification due")
		return
	}
	fmt.Fprintf(stdout, "[%s] %s\n", event.Urgency, event.Title)
	fmt.Fprintln(stdout, event.Message)
	fmt.Fprintf(stdout, "Action: %s\n", event.ActionRequired)
}
