package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/config"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

// analysis is the static picture of a network document.
type analysis struct {
	Name          string                `json:"name,omitempty"`
	Devices       []model.Device        `json:"devices"`
	Connections   []model.Connection    `json:"connections"`
	Conduction    core.ConductionResult `json:"conduction"`
	Grounding     core.GroundingResult  `json:"grounding"`
	Conflicts     []string              `json:"conflicts"`
	RuleConflicts []core.RuleConflict   `json:"ruleConflicts"`
	PowerFlow     core.PowerFlowResult  `json:"powerFlow"`
}

func analyzeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <document>",
		Short: "Show energization, earthing and power flow of a network document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.New(), v.GetString("config"))
			if err != nil {
				return err
			}
			doc, err := core.ReadDocumentFile(args[0])
			if err != nil {
				return err
			}
			a, err := analyze(doc, cfg.PowerFlow)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				return printJSON(cmd.OutOrStdout(), a)
			}
			renderAnalysis(cmd.OutOrStdout(), a)
			return nil
		},
	}
}

func analyze(doc *core.Document, opts core.PowerFlowOptions) (analysis, error) {
	net, err := doc.Build()
	if err != nil {
		return analysis{}, err
	}
	snap := net.Snapshot()
	cond := core.ComputeConduction(snap.Devices, snap.Connections)
	gnd := core.ComputeGrounding(snap.Devices, snap.Connections)
	return analysis{
		Name:          doc.Name,
		Devices:       snap.Devices,
		Connections:   snap.Connections,
		Conduction:    cond,
		Grounding:     gnd,
		Conflicts:     nonNilStrings(core.DetectConflicts(cond, gnd)),
		RuleConflicts: core.ConflictingRules(snap.Rules),
		PowerFlow:     core.EstimatePowerFlow(snap.Devices, snap.Connections, opts),
	}, nil
}

func renderAnalysis(w io.Writer, a analysis) {
	devices := table.NewWriter()
	devices.SetOutputMirror(w)
	devices.SetTitle("Devices")
	devices.AppendHeader(table.Row{"ID", "Kind", "State", "Health", "Energized", "Grounded", "Role"})
	for _, d := range a.Devices {
		devices.AppendRow(table.Row{
			d.ID, d.Kind, d.State, d.Health,
			yesNo(a.Conduction.EnergizedDevices.Has(d.ID)),
			yesNo(a.Grounding.GroundedDevices.Has(d.ID)),
			a.PowerFlow.Roles[d.ID],
		})
	}
	devices.Render()

	conns := table.NewWriter()
	conns.SetOutputMirror(w)
	conns.SetTitle("Connections")
	conns.AppendHeader(table.Row{"ID", "From", "To", "Live", "Earthed", "Flow MVA", "Rating MVA", "Loading %"})
	for _, c := range a.Connections {
		loading := "-"
		if pct, ok := a.PowerFlow.EdgeLoadingPct[c.ID]; ok {
			loading = fmt.Sprintf("%.1f", pct)
			if pct > 100 {
				loading += " OVERLOAD"
			}
		}
		rating := "-"
		if c.RatingMVA > 0 {
			rating = fmt.Sprintf("%.1f", c.RatingMVA)
		}
		conns.AppendRow(table.Row{
			c.ID, c.From, c.To,
			yesNo(a.Conduction.EnergizedConnections.Has(c.ID)),
			yesNo(a.Grounding.GroundedConnections.Has(c.ID)),
			fmt.Sprintf("%.2f", a.PowerFlow.EdgeFlowMVA[c.ID]),
			rating, loading,
		})
	}
	conns.Render()

	if len(a.PowerFlow.BusVoltageState) > 0 {
		buses := table.NewWriter()
		buses.SetOutputMirror(w)
		buses.SetTitle("Buses")
		buses.AppendHeader(table.Row{"Bus", "Voltage", "Net Mvar"})
		ids := make([]string, 0, len(a.PowerFlow.BusVoltageState))
		for id := range a.PowerFlow.BusVoltageState {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			buses.AppendRow(table.Row{id, a.PowerFlow.BusVoltageState[id], fmt.Sprintf("%.2f", a.PowerFlow.BusReactiveMvar[id])})
		}
		buses.Render()
	}

	t := a.PowerFlow.Totals
	fmt.Fprintf(w, "served %.1f MW / %.1f MVA, unserved %.1f MW, overloaded connections: %d\n",
		t.ServedMW, t.ServedMVA, t.UnservedMW, t.OverloadedEdges)
	if len(a.Conflicts) > 0 {
		fmt.Fprintf(w, "WARNING energized and grounded: %s\n", strings.Join(a.Conflicts, ", "))
	}
	for _, rc := range a.RuleConflicts {
		fmt.Fprintf(w, "WARNING interlocks %s and %s contradict each other\n", rc.First, rc.Second)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
