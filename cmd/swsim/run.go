package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/config"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

// runEpoch anchors simulated time so event offsets read the same every run.
var runEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// action is one scripted step applied at a simulation offset.
type action struct {
	at    time.Duration
	label string
	apply func(ctx context.Context, sim *state.Simulation) error
}

type runOptions struct {
	duration time.Duration
	commands []string
	faults   []string
	clears   []string
	resets   []string
	seed     int64
	logLevel string
}

// runResult is the JSON form of a finished run.
type runResult struct {
	Duration time.Duration  `json:"durationNs"`
	Actions  []actionResult `json:"actions"`
	Events   []model.Event  `json:"events"`
	Final    state.Snapshot `json:"final"`
}

type actionResult struct {
	At     time.Duration `json:"atNs"`
	Action string        `json:"action"`
	Error  string        `json:"error,omitempty"`
}

func runCmd(v *viper.Viper) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Play commands and faults against a simulated clock",
		Example: `  swsim run bay.yaml --command CB1=open@1s --command ES1=closed@5s
  swsim run bay.yaml --fault c4@2s,persistent,severity=severe --duration 20s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgViper := viper.New()
			if cmd.Flags().Changed("seed") {
				cfgViper.Set("sim.seed", opts.seed)
			}
			cfg, err := config.Load(cfgViper, v.GetString("config"))
			if err != nil {
				return err
			}
			doc, err := core.ReadDocumentFile(args[0])
			if err != nil {
				return err
			}
			actions, err := parseActions(opts)
			if err != nil {
				return err
			}
			log := logging.New(logging.Config{Level: opts.logLevel, Output: cmd.ErrOrStderr()})

			res, err := simulate(cmd.Context(), cfg, doc, actions, opts.duration, log)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), res)
			}
			renderRun(cmd.OutOrStdout(), res)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.DurationVar(&opts.duration, "duration", 30*time.Second, "simulated time to run")
	flags.StringArrayVar(&opts.commands, "command", nil, "switching command DEVICE=open|closed[@offset]")
	flags.StringArrayVar(&opts.faults, "fault", nil, "fault CONNECTION[@offset][,persistent][,severity=normal|severe|extreme][,position=0..1]")
	flags.StringArrayVar(&opts.clears, "clear", nil, "clear the Nth injected fault (1-based) N[@offset]")
	flags.StringArrayVar(&opts.resets, "reset", nil, "reset device condition DEVICE[@offset]")
	flags.Int64Var(&opts.seed, "seed", 0, "random seed (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level for simulator diagnostics on stderr")
	return cmd
}

func simulate(ctx context.Context, cfg config.Config, doc *core.Document, actions []action, duration time.Duration, log logging.Logger) (runResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	timers := timer.NewVirtualScheduler(runEpoch)
	sim := state.NewSimulation(timers, log, cfg.SimulationOptions(cfg.Seed(time.Now()))...)
	if err := sim.LoadDocument(ctx, doc); err != nil {
		return runResult{}, err
	}

	sort.SliceStable(actions, func(i, j int) bool { return actions[i].at < actions[j].at })
	res := runResult{Duration: duration}
	for _, a := range actions {
		if a.at > duration {
			break
		}
		timers.AdvanceTo(runEpoch.Add(a.at))
		ar := actionResult{At: a.at, Action: a.label}
		if err := a.apply(ctx, sim); err != nil {
			ar.Error = err.Error()
		}
		res.Actions = append(res.Actions, ar)
	}
	timers.AdvanceTo(runEpoch.Add(duration))

	res.Events = sim.Events(0, 0)
	res.Final = sim.Snapshot()
	return res, nil
}

func parseActions(opts runOptions) ([]action, error) {
	var out []action
	for _, spec := range opts.commands {
		a, err := parseCommand(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	for _, spec := range opts.faults {
		a, err := parseFault(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	for _, spec := range opts.clears {
		a, err := parseClear(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	for _, spec := range opts.resets {
		target, at, err := splitOffset(spec)
		if err != nil {
			return nil, err
		}
		id := target
		out = append(out, action{at: at, label: "reset " + id, apply: func(ctx context.Context, sim *state.Simulation) error {
			return sim.ResetCondition(ctx, id)
		}})
	}
	return out, nil
}

// splitOffset separates "body@1.5s" into body and offset; no @ means zero.
func splitOffset(spec string) (string, time.Duration, error) {
	body, offset, found := strings.Cut(strings.TrimSpace(spec), "@")
	if body == "" {
		return "", 0, fmt.Errorf("empty action %q", spec)
	}
	if !found {
		return body, 0, nil
	}
	at, err := time.ParseDuration(offset)
	if err != nil || at < 0 {
		return "", 0, fmt.Errorf("bad offset in %q", spec)
	}
	return body, at, nil
}

func parseCommand(spec string) (action, error) {
	body, at, err := splitOffset(spec)
	if err != nil {
		return action{}, err
	}
	id, st, ok := strings.Cut(body, "=")
	if !ok || id == "" {
		return action{}, fmt.Errorf("command %q: want DEVICE=open|closed[@offset]", spec)
	}
	target, err := model.ParseSwitchState(st)
	if err != nil {
		return action{}, fmt.Errorf("command %q: %w", spec, err)
	}
	return action{
		at:    at,
		label: fmt.Sprintf("%s %s", target.Verb(), id),
		apply: func(ctx context.Context, sim *state.Simulation) error {
			_, err := sim.ScheduleCommand(ctx, state.CommandRequest{DeviceID: id, Target: target})
			return err
		},
	}, nil
}

func parseFault(spec string) (action, error) {
	parts := strings.Split(spec, ",")
	body, at, err := splitOffset(parts[0])
	if err != nil {
		return action{}, err
	}
	req := protection.FaultRequest{ConnectionID: body, Position: 0.5, Severity: model.SeverityNormal}
	for _, opt := range parts[1:] {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "persistent":
			req.Persistent = true
		case "severity":
			sev, err := model.ParseSeverity(val)
			if err != nil {
				return action{}, fmt.Errorf("fault %q: %w", spec, err)
			}
			req.Severity = sev
		case "position", "pos":
			p, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return action{}, fmt.Errorf("fault %q: bad position %q", spec, val)
			}
			req.Position = p
		default:
			return action{}, fmt.Errorf("fault %q: unknown option %q", spec, key)
		}
	}
	return action{
		at:    at,
		label: "fault on " + req.ConnectionID,
		apply: func(ctx context.Context, sim *state.Simulation) error {
			_, err := sim.InjectFault(ctx, req)
			return err
		},
	}, nil
}

func parseClear(spec string) (action, error) {
	body, at, err := splitOffset(spec)
	if err != nil {
		return action{}, err
	}
	n, err := strconv.Atoi(body)
	if err != nil || n < 1 {
		return action{}, fmt.Errorf("clear %q: want a 1-based fault number", spec)
	}
	return action{
		at:    at,
		label: fmt.Sprintf("clear fault #%d", n),
		apply: func(ctx context.Context, sim *state.Simulation) error {
			faults := sim.Faults()
			if n > len(faults) {
				return fmt.Errorf("%w: only %d fault(s) injected", state.ErrFaultNotFound, len(faults))
			}
			return sim.ClearFault(ctx, faults[n-1].ID)
		},
	}, nil
}

func renderRun(w io.Writer, res runResult) {
	if len(res.Actions) > 0 {
		acts := table.NewWriter()
		acts.SetOutputMirror(w)
		acts.SetTitle("Actions")
		acts.AppendHeader(table.Row{"T+", "Action", "Result"})
		for _, a := range res.Actions {
			result := "accepted"
			if a.Error != "" {
				result = "rejected: " + a.Error
			}
			acts.AppendRow(table.Row{a.At, a.Action, result})
		}
		acts.Render()
	}

	events := table.NewWriter()
	events.SetOutputMirror(w)
	events.SetTitle("Events")
	events.AppendHeader(table.Row{"#", "T+", "Severity", "Type", "Device", "Message"})
	for _, ev := range res.Events {
		events.AppendRow(table.Row{ev.Seq, ev.Time.Sub(runEpoch), ev.Severity, ev.Type, ev.DeviceID, ev.Message})
	}
	events.Render()

	final := table.NewWriter()
	final.SetOutputMirror(w)
	final.SetTitle(fmt.Sprintf("State at T+%s", res.Duration))
	final.AppendHeader(table.Row{"ID", "Kind", "State", "Health", "Energized", "Grounded", "Lockout", "Blocked"})
	blocked := core.NewIDSet(res.Final.FaultBlocked...)
	for _, d := range res.Final.Devices {
		lockout := ""
		if d.Protection != nil && d.Protection.Lockout {
			lockout = "LOCKOUT"
		}
		final.AppendRow(table.Row{
			d.ID, d.Kind, d.State, d.Health,
			yesNo(res.Final.Conduction.EnergizedDevices.Has(d.ID)),
			yesNo(res.Final.Grounding.GroundedDevices.Has(d.ID)),
			lockout,
			yesNo(blocked.Has(d.ID)),
		})
	}
	final.Render()

	if len(res.Final.Faults) > 0 {
		faults := table.NewWriter()
		faults.SetOutputMirror(w)
		faults.SetTitle("Faults")
		faults.AppendHeader(table.Row{"ID", "Connection", "Severity", "Status", "Trip set", "Destroyed"})
		for _, f := range res.Final.Faults {
			faults.AppendRow(table.Row{f.ID, f.ConnectionID, f.Severity, f.Status,
				strings.Join(f.TripSet, " "), strings.Join(f.DestroyedBreakers, " ")})
		}
		faults.Render()
	}
	if len(res.Final.Conflicts) > 0 {
		fmt.Fprintf(w, "WARNING energized and grounded: %s\n", strings.Join(res.Final.Conflicts, ", "))
	}
}
