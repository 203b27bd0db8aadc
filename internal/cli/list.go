package cli

import (
	"flag"
	"fmt"
)

func runList(args []string, gf globalFlags) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", "", "Filter by status (active, nudged, released, completed)")
	claimer := fs.String("claimer", "", "Filter by claimer username")
	nudgeable := fs.Bool("nudgeable", false, "Show only claims inside the nudge window")
	stale := fs.Bool("stale", false, "Show only claims past their deadline")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}
	if *nudgeable && *stale {
		return fmt.Errorf("--nudgeable and --stale are mutually exclusive")
	}

	client := newClient(gf)

	switch {
	case *nudgeable:
		set, err := client.Nudgeable()
		if err != nil {
			return err
		}
		printClaimSet(set, gf.pretty)
	case *stale:
		set, err := client.Stale()
		if err != nil {
			return err
		}
		printClaimSet(set, gf.pretty)
	default:
		set, err := client.Claims(ClaimOpts{
			Repo:    gf.repo, // only an explicit --repo filters; no git auto-detect here
			Status:  *status,
			Claimer: *claimer,
		})
		if err != nil {
			return err
		}
		printClaimSet(set, gf.pretty)
	}
	return nil
}

func runShow(args []string, gf globalFlags) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cw show <claim-id>")
	}
	var id int
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil || id <= 0 {
		return fmt.Errorf("invalid claim id %q", args[0])
	}

	client := newClient(gf)
	detail, err := client.Claim(id)
	if err != nil {
		return err
	}
	printClaimDetail(detail, gf.pretty)
	return nil
}
