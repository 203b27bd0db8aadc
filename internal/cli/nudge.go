package cli

import (
	"flag"
	"fmt"
	"strconv"
)

func runNudge(args []string, gf globalFlags) error {
	fs := flag.NewFlagSet("nudge", flag.ContinueOnError)
	all := fs.Bool("all", false, "Nudge every eligible claim")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	client := newClient(gf)

	if *all {
		result, err := client.NudgeAll()
		if err != nil {
			return err
		}
		if gf.pretty {
			fmt.Println(result.Message)
		} else {
			printJSON(result)
		}
		return nil
	}

	if fs.NArg() == 0 {
		return fmt.Errorf("usage: cw nudge <claim-id> | cw nudge --all")
	}
	id, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid claim id %q", fs.Arg(0))
	}

	result, err := client.Nudge(id)
	if err != nil {
		return err
	}
	if gf.pretty {
		fmt.Println(result.Message)
	} else {
		printJSON(result)
	}
	return nil
}
