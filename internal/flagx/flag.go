// Package flagx lets several flag sets share one command line: each parser
// picks out only the flags it owns before calling Parse.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// name strips the leading dashes, since the flag package treats "-x" and
// "--x" alike.
func name(arg string) string {
	return strings.TrimLeft(arg, "-")
}

// FilterArgs keeps the allowed flags of args together with their values.
// Allowed names are given without dashes. "-f v", "--f v", "-f=v" and
// "--f=v" are all recognised; a token following an allowed flag is its
// value unless it starts with "-". The result is never nil.
func FilterArgs(args []string, allowed ...string) []string {
	keep := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		keep[name(f)] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" || arg == "--" {
			continue
		}
		if n, _, hasValue := strings.Cut(arg, "="); hasValue {
			if keep[name(n)] {
				out = append(out, arg)
			}
			continue
		}
		if !keep[name(arg)] {
			continue
		}
		out = append(out, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, args[i+1])
			i++
		}
	}
	return out
}

// ConfigFile returns the path given with -c or -config in args, "" when
// absent. The last occurrence wins.
func ConfigFile(args []string) string {
	var path string
	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.SetOutput(discard{})
	fs.StringVar(&path, "config", "", "path to config file (JSON or YAML)")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, "c", "config"))
	return path
}

// ConfigFileFlag is ConfigFile over the process arguments.
func ConfigFileFlag() string {
	return ConfigFile(os.Args[1:])
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
