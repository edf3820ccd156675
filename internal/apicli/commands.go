package apicli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/cmdtree/internal/cmdtree"
)

// paramBinding ties a parameter to the flag it was registered under.
type paramBinding struct {
	param cmdtree.ParamDef
	flag  string
}

// bindParams assigns flag names. A flag already taken by a global flag or an
// earlier parameter gets a "-{location}" suffix; if that is taken too the
// parameter gets no flag and can only be filled from a configured default.
func bindParams(params []cmdtree.ParamDef) []paramBinding {
	taken := make(map[string]struct{}, len(reservedFlags)+len(params))
	for name := range reservedFlags {
		taken[name] = struct{}{}
	}
	out := make([]paramBinding, 0, len(params))
	for _, p := range params {
		flag := p.Flag
		if flag != "" {
			if _, dup := taken[flag]; dup {
				flag = p.Flag + "-" + strings.ToLower(p.Location)
			}
			if _, dup := taken[flag]; dup {
				flag = ""
			}
		}
		if flag != "" {
			taken[flag] = struct{}{}
		}
		out = append(out, paramBinding{param: p, flag: flag})
	}
	return out
}

func (a *app) addResourceCommands(root *cobra.Command) {
	for _, res := range a.tree.Resources {
		if res.Name == "" {
			continue
		}
		if _, clash := builtinCommands[res.Name]; clash {
			continue
		}
		resCmd := &cobra.Command{
			Use:   res.Name,
			Short: res.DisplayName,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return cmd.Help()
			},
		}
		for _, op := range res.Ops {
			if op.Name == "" {
				continue
			}
			resCmd.AddCommand(a.newOperationCmd(op))
		}
		root.AddCommand(resCmd)
	}
}

func (a *app) newOperationCmd(op cmdtree.Operation) *cobra.Command {
	bindings := bindParams(op.Parameters)

	short := op.DisplayName
	if op.Summary != nil && *op.Summary != "" {
		short = *op.Summary
	}
	var long string
	if op.Description != nil {
		long = *op.Description
	}

	cmd := &cobra.Command{
		Use:   op.Name,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := buildRequest(cmd, op, bindings, a.cfg)
			if err != nil {
				return err
			}
			return a.send(cmd, req)
		},
	}

	for _, b := range bindings {
		if b.flag == "" {
			continue
		}
		usage := b.param.Location
		if b.param.Description != nil && *b.param.Description != "" {
			usage = *b.param.Description
		}
		if b.param.Required {
			usage += " (required)"
		}
		if b.param.List {
			cmd.Flags().StringArray(b.flag, nil, usage+" (repeatable, comma-separated)")
		} else {
			cmd.Flags().String(b.flag, "", usage)
		}
	}
	if op.HasBody {
		addBodyFlags(cmd)
	}
	return cmd
}
