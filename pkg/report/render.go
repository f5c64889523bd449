package report

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Render writes the report as a Member/Status table followed by the overall status.
func Render(w io.Writer, r Report) error {
	if r.Status == Empty {
		_, err := fmt.Fprintln(w, "No members found matching the selector.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Member\tStatus")
	fmt.Fprintln(tw, "------\t------")
	for _, o := range r.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\n", o.Member, o.Text())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s (%d/%d succeeded)\n", r.Status, r.Successes(), len(r.Outcomes))
	return err
}
