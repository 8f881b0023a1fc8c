package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/switchgear-simulator/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the swsim command tree. Each call gets its own viper
// instance so tests can run commands side by side.
func newRootCmd() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:   "swsim",
		Short: "Offline switchgear network analysis and simulation",
		Long: `swsim works on network documents (JSON or YAML, version switchgear/v1).

  validate  check a document for structural problems
  analyze   show energization, earthing, interlock conflicts and power flow
  run       play switching commands and faults against a simulated clock`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().StringP("config", "c", "", "simulator config file (YAML)")
	_ = v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	root.AddCommand(validateCmd(v), analyzeCmd(v), runCmd(v))
	return root
}

func validateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <document>",
		Short: "Check a network document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			doc, err := core.ReadDocumentFile(args[0])
			if err != nil {
				return err
			}
			verr := doc.Validate()
			if v.GetBool("json") {
				res := struct {
					Valid    bool     `json:"valid"`
					Problems []string `json:"problems"`
				}{Valid: verr == nil, Problems: problems(verr)}
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else if verr == nil {
				fmt.Fprintf(out, "%s: ok (%d devices, %d connections, %d interlocks)\n",
					args[0], len(doc.Devices), len(doc.Connections), len(doc.Interlocks))
			} else {
				for _, p := range problems(verr) {
					fmt.Fprintf(out, "%s: %s\n", args[0], p)
				}
			}
			if verr != nil {
				return fmt.Errorf("%s has %d problem(s)", args[0], len(problems(verr)))
			}
			return nil
		},
	}
}

func problems(err error) []string {
	if err == nil {
		return []string{}
	}
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
