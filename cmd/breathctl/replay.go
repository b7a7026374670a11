package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
	"github.com/mirelabs/coherent/go-kernel/internal/store"
)

// #region command

func newReplayCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Fold the persisted event log through the reducer and summarize",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100000, "maximum events to replay, oldest first")
	return cmd
}

// #endregion command

// #region replay

func runReplay(limit int) error {
	st, err := store.NewStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	events, err := st.ListEvents(limit)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("no persisted events")
		return nil
	}

	state := runtime.Initial()
	counts := map[runtime.EventType]int{}
	interdictions := 0
	corrected := 0
	for _, e := range events {
		counts[e.Type]++
		if e.Type == runtime.EventSafetyInterdiction {
			interdictions++
		}
		if e.Corrected {
			corrected++
		}
		state = runtime.Reduce(state, e)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCOUNT")
	for _, t := range runtime.AllEventTypes() {
		if counts[t] == 0 {
			continue
		}
		fmt.Fprintf(w, "%s\t%d\n", t, counts[t])
	}
	w.Flush()

	fmt.Printf("\nreplayed %d events (%s .. %s)\n",
		len(events),
		events[0].At.Format("2006-01-02 15:04:05"),
		events[len(events)-1].At.Format("2006-01-02 15:04:05"))
	fmt.Printf("final status: %s  tempo: %.2f  cycles: %d\n",
		state.Status, state.TempoScale, state.CycleCount)
	if state.Pattern != nil {
		fmt.Printf("final pattern: %s (%s)\n", state.Pattern.ID, state.Pattern.Name)
	}
	fmt.Printf("interdictions: %d  shield corrections: %d\n", interdictions, corrected)
	return nil
}

// #endregion replay
