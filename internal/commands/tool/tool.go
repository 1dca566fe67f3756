// Package tool implements the tool command, which lists and runs referral
// tools directly without the LLM.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/referral-agent/internal/commands/shared"
	pkgerrors "github.com/tombee/referral-agent/pkg/errors"
	"github.com/tombee/referral-agent/pkg/tools"
)

// NewCommand creates the tool command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tool",
		Short: "List or run referral tools",
		Long: `Inspect and invoke the tools the agent uses, without an LLM.

Useful for checking NPPES and EHR connectivity and for testing insurance and
criteria rules.`,
	}
	cmd.AddCommand(newListCmd(), newRunCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := shared.NewRuntime(shared.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()
			return listTools(cmd.OutOrStdout(), rt.Registry, shared.GetJSON())
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		input   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run one tool",
		Long: `Run a tool with a JSON object of inputs and print its JSON result.

Pass --input - to read the inputs from stdin.`,
		Example: `  referral-agent tool run lookup_provider_by_npi --input '{"npi": "1234567893"}'
  referral-agent tool run check_insurance --input '{"payer": "Aetna", "plan_type": "PPO"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(input, cmd.InOrStdin())
			if err != nil {
				return err
			}

			rt, err := shared.NewRuntime(shared.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runTool(ctx, cmd.OutOrStdout(), rt.Registry, args[0], inputs)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "{}", "Tool inputs as a JSON object, or - for stdin")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Maximum time to wait for the tool")

	return cmd
}

// ToolInfo is one row of tool list output.
type ToolInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Required    []string               `json:"required,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Schema      map[string]interface{} `json:"input_schema"`
}

func listTools(out io.Writer, reg *tools.Registry, useJSON bool) error {
	descriptors := reg.Descriptors()
	infos := make([]ToolInfo, 0, len(descriptors))
	for _, d := range descriptors {
		info := ToolInfo{
			Name:        d.Name,
			Description: d.Description,
			Metadata:    d.Metadata,
			Schema:      d.Schema.JSONSchema(),
		}
		if d.Schema != nil && d.Schema.Inputs != nil {
			info.Required = append([]string(nil), d.Schema.Inputs.Required...)
			sort.Strings(info.Required)
		}
		infos = append(infos, info)
	}

	if useJSON {
		return shared.EmitJSON(out, map[string][]ToolInfo{"tools": infos})
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No tools registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tREQUIRED INPUTS\tDESCRIPTION")
	for _, info := range infos {
		required := strings.Join(info.Required, ", ")
		if required == "" {
			required = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", info.Name, required, firstLine(info.Description))
	}
	return w.Flush()
}

func parseInputs(input string, stdin io.Reader) (map[string]interface{}, error) {
	data := []byte(input)
	if input == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, shared.NewExecutionError("failed to read inputs from stdin", err)
		}
	}
	inputs := map[string]interface{}{}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, shared.NewExecutionError("--input must be a JSON object", err)
	}
	return inputs, nil
}

func runTool(ctx context.Context, out io.Writer, reg *tools.Registry, name string, inputs map[string]interface{}) error {
	if !reg.Has(name) {
		return shared.NewExecutionError(fmt.Sprintf("unknown tool %q (available: %s)", name, strings.Join(reg.List(), ", ")), nil)
	}

	outputs, err := reg.Execute(ctx, name, inputs)
	if err != nil {
		return shared.NewExecutionError(fmt.Sprintf("tool %s failed", name), err)
	}
	if err := shared.EmitJSON(out, outputs); err != nil {
		return err
	}
	if success, ok := outputs["success"].(bool); ok && !success {
		msg, _ := outputs["error"].(string)
		return shared.NewExecutionError(fmt.Sprintf("tool %s reported failure", name), pkgerrors.New(msg))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
