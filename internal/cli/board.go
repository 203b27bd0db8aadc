package cli

import (
	"flag"
	"fmt"
)

func runBoard(args []string, gf globalFlags) error {
	fs := flag.NewFlagSet("board", flag.ContinueOnError)
	top := fs.Bool("top", false, "Show only top performers")
	worst := fs.Bool("worst", false, "Show only worst offenders")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if *top && *worst {
		return fmt.Errorf("--top and --worst are mutually exclusive")
	}

	client := newClient(gf)

	fetch := client.Board
	switch {
	case *top:
		fetch = client.TopPerformers
	case *worst:
		fetch = client.WorstOffenders
	}

	set, err := fetch()
	if err != nil {
		return err
	}
	printBoardSet(set, gf.pretty)
	return nil
}

func runRepos(args []string, gf globalFlags) error {
	if len(args) > 0 {
		return fmt.Errorf("repos takes no arguments")
	}

	client := newClient(gf)
	set, err := client.Repos()
	if err != nil {
		return err
	}
	printRepositorySet(set, gf.pretty)
	return nil
}

func runActivity(args []string, gf globalFlags) error {
	fs := flag.NewFlagSet("activity", flag.ContinueOnError)
	limit := fs.Int("limit", 0, "Maximum number of entries (default: daemon default)")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	client := newClient(gf)
	set, err := client.Activity(*limit)
	if err != nil {
		return err
	}
	printActivitySet(set, gf.pretty)
	return nil
}
