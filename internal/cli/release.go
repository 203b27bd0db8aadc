package cli

import (
	"flag"
	"fmt"
	"strconv"
)

func runRelease(args []string, gf globalFlags) error {
	fs := flag.NewFlagSet("release", flag.ContinueOnError)
	reason := fs.String("reason", "", "Why the claim is being released")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("usage: cw release <claim-id> [--reason text]")
	}
	id, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid claim id %q", fs.Arg(0))
	}

	client := newClient(gf)
	result, err := client.Release(id, *reason)
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

func runComplete(args []string, gf globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cw complete <claim-id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid claim id %q", args[0])
	}

	client := newClient(gf)
	result, err := client.Complete(id)
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
