package sim

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/me/kernsim/pkg/model"
)

// PrintSummary writes the per-task exit lines and the disk totals of r.
func PrintSummary(w io.Writer, r *model.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Run %s: workload %s, policy %s, quantum %d, %s ticks\n",
		r.ID, r.Workload, r.Policy, r.Quantum, humanize.Comma(int64(r.Ticks)))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "TASK\tNAME\tPRIO\tEXECUTION\tPROCESSOR\tACTIVATIONS")
	for _, t := range r.Tasks {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\n",
			t.ID, t.Name, t.StaticPrio, t.ExecTicks, t.ProcessorTicks, t.Activations)
	}
	fmt.Fprintln(tw)

	capacity := uint64(r.Blocks) * uint64(r.BlockSize)
	fmt.Fprintf(tw, "Disk\t%s (%s blocks of %s)\n",
		humanize.IBytes(capacity), humanize.Comma(int64(r.Blocks)), humanize.IBytes(uint64(r.BlockSize)))
	fmt.Fprintf(tw, "Requests served\t%d (%d completed, %d failed)\n", r.Disk.Served, r.Disk.Completed, r.Disk.Failed)
	fmt.Fprintf(tw, "Total head movement\t%s blocks\n", humanize.Comma(r.Disk.TotalHeadMovement))
	fmt.Fprintf(tw, "Total busy time\t%s ticks\n", humanize.Comma(int64(r.Disk.TotalBusyTicks)))
	if len(r.Requests) > 0 {
		fmt.Fprintf(tw, "Average queue wait\t%.1f ticks\n", r.AverageWait())
	}
	if r.StepErrors > 0 {
		fmt.Fprintf(tw, "Workload step errors\t%d\n", r.StepErrors)
	}
	return tw.Flush()
}
