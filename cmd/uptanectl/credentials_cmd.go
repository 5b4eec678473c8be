package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liunix61/uptane-server/internal/infra/pki"
)

// runCredentialsInspect decodes a provisioning archive and checks that its
// device certificate chains to the bundled namespace root.
func runCredentialsInspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("credentials inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var at string
	fs.StringVar(&at, "at", "", "verification time (RFC3339, default now)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "credentials inspect requires <provisioning-credentials.zip>")
		return 1
	}
	now, err := parseAt(at)
	if err != nil {
		fmt.Fprintf(stderr, "parse at: %v\n", err)
		return 1
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "read archive: %v\n", err)
		return 1
	}
	bundle, err := pki.ReadProvisioningArchive(data)
	if err != nil {
		fmt.Fprintf(stderr, "decode archive: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "gateway_url=%s\n", bundle.GatewayURL)
	fmt.Fprintf(stdout, "device_cn=%s not_after=%s\n", bundle.Leaf.Subject.CommonName, bundle.Leaf.NotAfter.UTC().Format(time.RFC3339))
	for _, cert := range bundle.Chain {
		fmt.Fprintf(stdout, "root_cn=%s not_after=%s\n", cert.Subject.CommonName, cert.NotAfter.UTC().Format(time.RFC3339))
	}
	if err := bundle.Verify(now); err != nil {
		fmt.Fprintf(stdout, "status=fail reason=%q\n", err.Error())
		return 1
	}
	fmt.Fprintln(stdout, "status=pass")
	return 0
}

func parseAt(at string) (time.Time, error) {
	if at == "" {
		return time.Now(), nil
	}
	return time.Parse(time.RFC3339, at)
}
