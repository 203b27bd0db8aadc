package cli

import "fmt"

func runSweep(args []string, gf globalFlags) error {
	if len(args) > 0 {
		return fmt.Errorf("sweep takes no arguments")
	}

	client := newClient(gf)
	result, err := client.Sweep()
	if err != nil {
		return err
	}

	if gf.pretty {
		fmt.Println(result.Message)
		if result.Sweep != nil && result.Sweep.Failed > 0 {
			fmt.Printf("Warning: %d claims could not be checked.\n", result.Sweep.Failed)
		}
	} else {
		printJSON(result)
	}
	return nil
}
