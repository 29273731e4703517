// Command dupcheck reports repeated franchise keys in waifu list files and
// exits non-zero if it finds any.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"waifubot/pkg/catalog"

	"github.com/spf13/pflag"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("dupcheck", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: dupcheck FILE...")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	status := 0
	for _, path := range flags.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", path, err)
			status = 1
			continue
		}
		dups, err := catalog.DuplicateKeys(data)
		if err != nil {
			fmt.Fprintf(stdout, "%s: %v ❌\n", path, err)
			status = 1
			continue
		}
		if len(dups) > 0 {
			fmt.Fprintf(stdout, "%s: Duplicate key(s) found: %s ❌\n", path, strings.Join(dups, ", "))
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "%s: No duplicate keys detected! ✅\n", path)
	}
	return status
}
