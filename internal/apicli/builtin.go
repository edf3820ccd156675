package apicli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mark3labs/cmdtree/internal/client"
	"github.com/mark3labs/cmdtree/internal/cmdtree"
)

type listEntry struct {
	Resource string   `json:"resource"`
	Display  string   `json:"display"`
	Ops      []string `json:"ops"`
}

func (a *app) newListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources and operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				entries := make([]listEntry, 0, len(a.tree.Resources))
				for _, res := range a.tree.Resources {
					ops := make([]string, 0, len(res.Ops))
					for _, op := range res.Ops {
						ops = append(ops, op.Name)
					}
					entries = append(entries, listEntry{Resource: res.Name, Display: res.DisplayName, Ops: ops})
				}
				return writeJSON(out, entries, true)
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Resource", "Operation", "Method", "Path"})
			table.SetAutoWrapText(false)
			for _, res := range a.tree.Resources {
				for _, op := range res.Ops {
					table.Append([]string{res.Name, op.Name, op.Method, op.Path})
				}
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func (a *app) newDescribeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "describe RESOURCE OPERATION",
		Short: "Describe a specific operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, ok := a.tree.Find(args[0], args[1])
			if !ok {
				return fmt.Errorf("unknown command %s %s", args[0], args[1])
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, op, true)
			}
			writeDescription(out, op)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func writeDescription(w io.Writer, op *cmdtree.Operation) {
	fmt.Fprintf(w, "%s %s\n", op.Method, op.Path)
	fmt.Fprintf(w, "name: %s\n", op.DisplayName)
	if op.Summary != nil {
		fmt.Fprintf(w, "summary: %s\n", *op.Summary)
	}
	if op.Description != nil {
		fmt.Fprintf(w, "description: %s\n", *op.Description)
	}
	if op.HasBody {
		fmt.Fprintln(w, "body: --body JSON or --body-file PATH")
	}
	if len(op.Parameters) == 0 {
		return
	}
	fmt.Fprintln(w, "params:")
	for _, b := range bindParams(op.Parameters) {
		if b.flag == "" {
			fmt.Fprintf(w, "  %s (%s, required: %t, no flag)\n", b.param.Name, b.param.Location, b.param.Required)
			continue
		}
		fmt.Fprintf(w, "  --%s (%s, required: %t)\n", b.flag, b.param.Location, b.param.Required)
	}
}

func (a *app) newTreeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the full command tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, a.tree, true)
			}
			for _, res := range a.tree.Resources {
				fmt.Fprintf(out, "%s (%s)\n", res.Name, res.DisplayName)
				for _, op := range res.Ops {
					fmt.Fprintf(out, "  %s (%s)\n", op.Name, op.DisplayName)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

func (a *app) newAPICmd() *cobra.Command {
	var query []string
	cmd := &cobra.Command{
		Use:   "api METHOD PATH",
		Short: "Call any API endpoint",
		Example: strings.Join([]string{
			"  apicli api GET /zones --query per_page=5",
			`  apicli api POST /zones --body '{"name":"example.com"}'`,
		}, "\n"),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(strings.TrimSpace(args[0]))
			if method == "" {
				return fmt.Errorf("method is required")
			}
			pairs, err := parsePairs("query", query)
			if err != nil {
				return err
			}
			body, err := readBody(cmd)
			if err != nil {
				return err
			}
			return a.send(cmd, client.Request{Method: method, Path: args[1], Query: pairs, Body: body})
		},
	}
	cmd.Flags().StringArrayVar(&query, "query", nil, "Query parameter KEY=VALUE (repeatable)")
	addBodyFlags(cmd)
	return cmd
}

// writeJSON prints v as compact or indented JSON followed by a newline.
func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// formatOutput unwraps the conventional {"result": ...} envelope unless raw
// output was requested.
func formatOutput(body any, raw bool) any {
	if raw {
		return body
	}
	if m, ok := body.(map[string]any); ok {
		if result, ok := m["result"]; ok {
			return result
		}
	}
	return body
}
