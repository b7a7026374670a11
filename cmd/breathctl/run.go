package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mirelabs/coherent/go-kernel/internal/belief"
	"github.com/mirelabs/coherent/go-kernel/internal/bridge"
	"github.com/mirelabs/coherent/go-kernel/internal/clock"
	"github.com/mirelabs/coherent/go-kernel/internal/kernel"
	"github.com/mirelabs/coherent/go-kernel/internal/protocol"
	"github.com/mirelabs/coherent/go-kernel/internal/runtime"
	"github.com/mirelabs/coherent/go-kernel/internal/sensor"
	"github.com/mirelabs/coherent/go-kernel/internal/store"
)

const logRetention = 30 * 24 * time.Hour

// #region run-cmd
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the interactive session loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context())
		},
	}
}

// #endregion run-cmd

// #region session
func runSession(ctx context.Context) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := store.NewStore(viper.GetString("db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	library := protocol.NewLibrary()
	if dir := viper.GetString("patterns-dir"); dir != "" {
		if err := protocol.LoadDir(library, dir, logger); err != nil {
			logger.Warn("pattern dir unavailable", zap.Error(err))
		} else {
			go func() {
				if err := protocol.Watch(ctx, library, dir, logger); err != nil && ctx.Err() == nil {
					logger.Warn("pattern watcher stopped", zap.Error(err))
				}
			}()
		}
	}

	var estimator kernel.Estimator
	switch viper.GetString("estimator") {
	case "unscented":
		estimator = belief.NewUnscented(belief.DefaultUnscentedConfig())
	default:
		estimator = belief.NewFilter(belief.DefaultFilterConfig())
	}

	k := kernel.New(kernel.DefaultConfig(), estimator, st, logger)
	k.Boot(logRetention)

	unsubscribe := k.Subscribe(printTransitions())
	defer unsubscribe()

	src, err := sensor.NewClient(viper.GetString("sensor-addr"))
	if err != nil {
		logger.Warn("sensor unavailable, dead reckoning", zap.Error(err))
		src = nil
	} else {
		defer src.Close()
	}

	var source clock.Source
	if src != nil {
		source = src
	}
	driver := clock.NewDriver(clock.DefaultConfig(), k.Tick, source, logger)
	agent := bridge.New(k, library, logger)

	fmt.Println("Breathing kernel ready. Commands: load <id> | start | pause | resume | tempo <x> | say <msg> | halt | quit")

	// The kernel is single-threaded: this loop is its only owner. Stdin
	// proposals arrive over a channel and are dispatched between ticks.
	proposals := make(chan bridge.Proposal, 8)
	go readCommands(proposals)

	ticker := time.NewTicker(clock.DefaultConfig().Interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-proposals:
			if !ok {
				return nil
			}
			agent.Propose(p)
		case now := <-ticker.C:
			driver.Advance(ctx, now.Sub(last).Seconds())
			last = now
		}
	}
}

// #endregion session

// #region repl

func readCommands(out chan<- bridge.Proposal) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) == 0 {
			continue
		}
		p := bridge.Proposal{Origin: runtime.OriginUser}
		switch fields[0] {
		case "quit", "exit":
			return
		case "load":
			if len(fields) < 2 {
				fmt.Println("usage: load <pattern-id>")
				continue
			}
			p.Action = "load_protocol"
			p.PatternID = fields[1]
		case "start":
			p.Action = "start_session"
		case "pause":
			p.Action = "pause"
		case "resume":
			p.Action = "resume"
		case "halt":
			p.Action = "halt"
		case "say":
			p.Action = "voice_message"
			p.Message = strings.Join(fields[1:], " ")
		case "tempo":
			if len(fields) < 2 {
				fmt.Println("usage: tempo <scale>")
				continue
			}
			scale, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Println("tempo: not a number")
				continue
			}
			p.Action = "adjust_tempo"
			p.TempoScale = scale
		default:
			fmt.Printf("unknown command %q\n", fields[0])
			continue
		}
		out <- p
	}
}

// printTransitions reports status and phase changes on stdout.
func printTransitions() func(s runtime.RuntimeState) {
	var lastStatus runtime.Status
	var lastPhase int
	return func(s runtime.RuntimeState) {
		if s.Status != lastStatus {
			fmt.Printf("[%s] tempo=%.2f cycles=%d\n", s.Status, s.TempoScale, s.CycleCount)
			lastStatus = s.Status
		}
		if s.Pattern != nil && s.Phase != lastPhase && s.Status == runtime.StatusRunning {
			fmt.Printf("  %s (%.1fs)\n", s.Pattern.Phases[s.Phase].Name, s.PhaseDuration)
			lastPhase = s.Phase
		}
		if s.PendingMessage != "" {
			fmt.Printf("  ~ %s\n", s.PendingMessage)
		}
	}
}

// #endregion repl
