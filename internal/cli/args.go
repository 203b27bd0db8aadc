package cli

import "strings"

// boolFlags lists flags that take no value, so reorderArgs knows not to
// consume the next argument for them.
var boolFlags = map[string]bool{
	"-all": true, "--all": true,
	"-top": true, "--top": true,
	"-worst": true, "--worst": true,
	"-nudgeable": true, "--nudgeable": true,
	"-stale": true, "--stale": true,
	"-no-start": true, "--no-start": true,
	"-status": true, "--status": true,
}

// reorderArgs moves flag arguments before positional arguments so that
// Go's flag package (which stops at the first non-flag) parses them all.
// It handles "-flag value", "--flag value", "-flag=value", and "--flag=value".
func reorderArgs(args []string) []string {
	var flags, positional []string
	i := 0
	for i < len(args) {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			switch {
			case strings.Contains(arg, "="):
				// -flag=value or --flag=value
				flags = append(flags, arg)
				i++
			case boolFlags[arg]:
				flags = append(flags, arg)
				i++
			case i+1 < len(args):
				// -flag value or --flag value
				flags = append(flags, arg, args[i+1])
				i += 2
			default:
				// trailing flag with no value — pass through, flag.Parse will error
				flags = append(flags, arg)
				i++
			}
		} else {
			positional = append(positional, arg)
			i++
		}
	}
	return append(flags, positional...)
}
