// Package flagx holds helpers for parsing a subset of command-line flags,
// so that several independent flag sets can read the same os.Args.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs keeps only the flags listed in valueFlags and boolFlags, in
// their original order.
//
// Flags in valueFlags take a value, either joined ("-c=conf.json") or as the
// next argument ("-c conf.json") when that argument does not start with '-'.
// Flags in boolFlags never consume the following argument.
func FilterArgs(args []string, valueFlags []string, boolFlags ...string) []string {
	kept, _ := splitArgs(args, valueFlags, boolFlags)
	return kept
}

// RemoveArgs is the complement of FilterArgs: it drops the listed flags and
// their values and keeps everything else, positional arguments included.
func RemoveArgs(args []string, valueFlags []string, boolFlags ...string) []string {
	_, rest := splitArgs(args, valueFlags, boolFlags)
	return rest
}

func splitArgs(args []string, valueFlags, boolFlags []string) (kept, rest []string) {
	kinds := make(map[string]bool, len(valueFlags)+len(boolFlags))
	for _, f := range valueFlags {
		kinds[f] = true
	}
	for _, f := range boolFlags {
		kinds[f] = false
	}

	kept = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			rest = append(rest, arg)
			continue
		}

		name, _, joined := strings.Cut(arg, "=")
		takesValue, ok := kinds[name]
		if !ok {
			rest = append(rest, arg)
			continue
		}
		kept = append(kept, arg)
		if joined || !takesValue {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			kept = append(kept, args[i+1])
			i++
		}
	}
	return kept, rest
}

// ConfigPath returns the JSON config file named by -c or -config in args,
// or "" when neither is present.
func ConfigPath(args []string) string {
	var path string

	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(discard{})
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return path
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
