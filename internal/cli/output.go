package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmaddaus/cookiewatch/internal/model"
	"github.com/jmaddaus/cookiewatch/internal/query"
)

// printJSON outputs v as indented JSON to stdout.
func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// printMessage prints a simple message (used for non-entity results).
func printMessage(msg string, pretty bool) {
	if pretty {
		fmt.Println(msg)
		return
	}
	printJSON(map[string]string{"message": msg})
}

// printClaimSet prints claims either as JSON or as a tabwriter table.
func printClaimSet(set *query.ClaimSet, pretty bool) {
	if !pretty {
		printJSON(set)
		return
	}
	if set.Degraded {
		fmt.Println("Warning: storage unavailable, showing partial data.")
	}
	if len(set.Claims) == 0 {
		fmt.Println("No claims found.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tISSUE\tCLAIMER\tSTATUS\tPR\tNUDGES\tAGE\tDEADLINE")
	for _, c := range set.Claims {
		pr := "-"
		if c.HasLinkedPR {
			pr = "yes"
		}
		fmt.Fprintf(w, "%d\t#%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID,
			c.IssueNumber,
			c.ClaimerUsername,
			c.Status,
			pr,
			c.NudgeCount,
			formatAge(c.ClaimedAt),
			c.AutoReleaseAt.Format("2006-01-02"),
		)
	}
	w.Flush()
}

// printClaimDetail prints one claim with its audit trail.
func printClaimDetail(detail *ClaimDetail, pretty bool) {
	if !pretty {
		printJSON(detail)
		return
	}

	c := detail.Claim
	fmt.Printf("Claim %d\n", c.ID)
	fmt.Printf("  Issue:     #%d %s\n", c.IssueNumber, c.IssueTitle)
	if c.IssueURL != "" {
		fmt.Printf("  URL:       %s\n", c.IssueURL)
	}
	fmt.Printf("  Claimer:   %s\n", c.ClaimerUsername)
	fmt.Printf("  Status:    %s\n", c.Status)
	fmt.Printf("  PR linked: %v\n", c.HasLinkedPR)
	fmt.Printf("  Claimed:   %s\n", c.ClaimedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Deadline:  %s\n", c.AutoReleaseAt.Format("2006-01-02 15:04:05"))
	if c.NudgeCount > 0 {
		fmt.Printf("  Nudges:    %d", c.NudgeCount)
		if c.LastNudgedAt != nil {
			fmt.Printf(" (last %s)", c.LastNudgedAt.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
	}
	if c.CommentText != "" {
		fmt.Printf("  Comment:   %q\n", truncate(c.CommentText, 80))
	}

	if len(detail.Activity) > 0 {
		fmt.Println("\nHistory:")
		for _, a := range detail.Activity {
			fmt.Printf("  %s  %s\n", a.CreatedAt.Format("2006-01-02 15:04:05"), a.Action)
		}
	}
}

// printBoardSet prints the reliability board.
func printBoardSet(set *query.BoardSet, pretty bool) {
	if !pretty {
		printJSON(set)
		return
	}
	if set.Degraded {
		fmt.Println("Warning: storage unavailable, showing partial data.")
	}
	if len(set.Entries) == 0 {
		fmt.Println("No tracked contributors yet.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tCOMPLETED\tABANDONED\tSCORE")
	for _, e := range set.Entries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\n",
			e.Username, e.TotalCompleted, e.TotalAbandoned, e.ReliabilityScore)
	}
	w.Flush()
}

// printRepositorySet prints tracked repositories.
func printRepositorySet(set *query.RepositorySet, pretty bool) {
	if !pretty {
		printJSON(set)
		return
	}
	if set.Degraded {
		fmt.Println("Warning: storage unavailable, showing partial data.")
	}
	if len(set.Repositories) == 0 {
		fmt.Println("No repositories tracked. Run 'cw scan --repo owner/name' to add one.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tLAST SCANNED")
	for _, r := range set.Repositories {
		fmt.Fprintf(w, "%s\t%s\n", r.FullName(), r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

// printActivitySet prints the recent activity feed.
func printActivitySet(set *query.ActivitySet, pretty bool) {
	if !pretty {
		printJSON(set)
		return
	}
	if set.Degraded {
		fmt.Println("Warning: storage unavailable, showing partial data.")
	}
	if len(set.Entries) == 0 {
		fmt.Println("No activity yet.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tDETAIL")
	for _, e := range set.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, summarizePayload(e))
	}
	w.Flush()
}

// summarizePayload renders an activity payload as a one-line summary.
func summarizePayload(e *model.Activity) string {
	var p model.ActivityPayload
	if err := json.Unmarshal([]byte(e.Payload), &p); err != nil {
		return ""
	}

	var out string
	if p.Repository != "" {
		out = p.Repository
	}
	if p.IssueNumber != 0 {
		out += fmt.Sprintf("#%d", p.IssueNumber)
	}
	if p.Claimer != "" {
		out += " @" + p.Claimer
	}
	if p.Reason != "" {
		out += " (" + p.Reason + ")"
	}
	if p.NudgeCount != 0 {
		out += fmt.Sprintf(" (nudge %d)", p.NudgeCount)
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// formatAge renders a duration since t like "3d" or "5h".
func formatAge(t time.Time) string {
	d := time.Since(t)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
