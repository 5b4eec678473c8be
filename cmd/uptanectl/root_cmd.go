package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/liunix61/uptane-server/internal/domain"
	"github.com/liunix61/uptane-server/internal/infra/tuf"
)

// runRootCheck validates a root.json fetched from the server: shape, key id
// derivation and expiry.
func runRootCheck(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("root check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var at string
	fs.StringVar(&at, "at", "", "expiry reference time (RFC3339, default now)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "root check requires <root.json>")
		return 1
	}
	now, err := parseAt(at)
	if err != nil {
		fmt.Fprintf(stderr, "parse at: %v\n", err)
		return 1
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "read root: %v\n", err)
		return 1
	}
	doc, err := tuf.ParseRoot(data)
	if err != nil {
		fmt.Fprintf(stdout, "status=fail reason=%q\n", err.Error())
		return 1
	}

	fmt.Fprintf(stdout, "version=%d expires=%s\n", doc.Signed.Version, doc.Signed.Expires)
	for _, role := range domain.Roles {
		id := doc.KeyID(role)
		fmt.Fprintf(stdout, "role=%s keyid=%s keytype=%s\n", role, id, doc.Signed.Keys[id].KeyType)
	}
	if err := doc.VerifyKeyIDs(); err != nil {
		fmt.Fprintf(stdout, "status=fail reason=%q\n", err.Error())
		return 1
	}
	if !doc.ExpiresAt().After(now) {
		fmt.Fprintf(stdout, "status=fail reason=%q\n", "expired at "+doc.ExpiresAt().Format(time.RFC3339))
		return 1
	}
	fmt.Fprintln(stdout, "status=pass")
	return 0
}
