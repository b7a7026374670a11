package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirelabs/coherent/go-kernel/internal/kernel"
	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
	"github.com/mirelabs/coherent/go-kernel/internal/store"
)

// #region command

func newInspectCmd() *cobra.Command {
	var reset string
	var tail int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the safety registry and recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset != "" {
				return runReset(reset)
			}
			return runInspect(tail)
		},
	}
	cmd.Flags().StringVar(&reset, "reset", "", "clear the lock and stress score for a pattern id")
	cmd.Flags().IntVar(&tail, "tail", 20, "number of recent events to show")
	return cmd
}

// #endregion command

// #region inspect

func runInspect(tail int) error {
	st, err := store.NewStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	registry := map[string]runtime.SafetyProfile{}
	found, err := st.GetMeta(kernel.DefaultConfig().MetaRegistry, &registry)
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}

	now := time.Now()
	if !found || len(registry) == 0 {
		fmt.Println("safety registry: empty")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PATTERN\tRESONANCE\tSTRIKES\tSTRESS\tLOCK")
		for id, p := range registry {
			lock := "-"
			if p.Locked(now) {
				lock = time.UnixMilli(p.SafetyLockUntil).Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%.2f\t%.1f\t%.2f\t%s\n",
				id, p.ResonanceScore, p.StressStrikes, p.CumulativeStress, lock)
		}
		w.Flush()
	}

	events, err := st.ListEvents(1 << 20)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) > tail {
		events = events[len(events)-tail:]
	}
	if len(events) == 0 {
		return nil
	}
	fmt.Printf("\nlast %d events:\n", len(events))
	for _, e := range events {
		line := fmt.Sprintf("%s  %-20s %s", e.At.Format("15:04:05"), e.Type, e.Origin)
		switch {
		case e.Code != "":
			line += fmt.Sprintf("  code=%s reason=%q", e.Code, e.Reason)
		case e.Pattern != nil:
			line += fmt.Sprintf("  pattern=%s", e.Pattern.ID)
		case e.Type == runtime.EventAdjustTempo:
			line += fmt.Sprintf("  scale=%.2f", e.TempoScale)
		case e.Message != "":
			line += fmt.Sprintf("  %q", e.Message)
		}
		if e.Corrected {
			line += "  [corrected]"
		}
		fmt.Println(line)
	}
	return nil
}

// #endregion inspect

// #region reset

// runReset is the explicit user escape hatch: it clears a pattern's lock,
// strikes, and stress score but keeps the resonance history intact.
func runReset(patternID string) error {
	st, err := store.NewStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	key := kernel.DefaultConfig().MetaRegistry
	registry := map[string]runtime.SafetyProfile{}
	found, err := st.GetMeta(key, &registry)
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	if !found {
		return fmt.Errorf("no safety registry in %s", viper.GetString("db"))
	}
	p, ok := registry[patternID]
	if !ok {
		return fmt.Errorf("no safety profile for pattern %q", patternID)
	}

	p.SafetyLockUntil = 0
	p.StressStrikes = 0
	p.CumulativeStress = 0
	registry[patternID] = p
	if err := st.SetMeta(key, registry); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	fmt.Printf("reset safety profile for %s\n", patternID)
	return nil
}

// #endregion reset
