package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"fleet-monitor-backend/internal/blacklist"
	"fleet-monitor-backend/internal/poller"
)

func newPollCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single poll cycle and print the fleet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ranges, err := blacklist.Load(a.cfg.Blacklist.Path)
			if err != nil {
				return err
			}

			rec := &eventCollector{}
			p := poller.New(a.cfg.Poller, ranges, rec)
			if err := p.PollOnce(cmd.Context()); err != nil {
				return err
			}
			snap, _ := p.Snapshot()
			renderSnapshot(cmd.OutOrStdout(), snap, rec.events)
			return nil
		},
	}
}

// eventCollector keeps the transitions of a one-off cycle for printing.
type eventCollector struct {
	events []poller.Event
}

func (c *eventCollector) SnapshotUpdated(poller.Snapshot) {}

func (c *eventCollector) ExceptionTransition(e poller.Event) {
	c.events = append(c.events, e)
}

func renderSnapshot(w io.Writer, snap poller.Snapshot, events []poller.Event) {
	exceptions := make(map[string]poller.Event, len(events))
	for _, e := range events {
		exceptions[e.RobotID] = e
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Fleet at " + snap.At.Format("2006-01-02 15:04:05"))
	tw.AppendHeader(table.Row{"Robot", "Type", "Hardware State", "Exception"})

	for _, r := range snap.Robots {
		state := r.HardwareState
		if state == "ROBOT_ABNORMAL" {
			state = text.FgRed.Sprint(state)
		}
		exception := ""
		if e, ok := exceptions[r.ID]; ok {
			exception = string(e.Category) + ": " + e.Detail
		}
		tw.AppendRow(table.Row{r.ID, r.DisplayType, state, exception})
	}
	tw.AppendFooter(table.Row{"", "", "Robots", len(snap.Robots)})
	tw.Render()
}
