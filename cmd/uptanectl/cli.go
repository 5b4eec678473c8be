package main

import (
	"fmt"
	"io"
	"path/filepath"
)

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "credentials":
		if len(args) >= 3 && args[2] == "inspect" {
			return runCredentialsInspect(args[3:], stdout, stderr)
		}
	case "root":
		if len(args) >= 3 && args[2] == "check" {
			return runRootCheck(args[3:], stdout, stderr)
		}
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, w io.Writer) {
	name := "uptanectl"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(w, "usage:\n")
	fmt.Fprintf(w, "  %s credentials inspect [--at <rfc3339>] <provisioning-credentials.zip>\n", name)
	fmt.Fprintf(w, "  %s root check [--at <rfc3339>] <root.json>\n", name)
}
