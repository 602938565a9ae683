package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/gdbmi/internal/mi"
)

func newEncodeCmd() *cobra.Command {
	var (
		options []string
		token   uint64
		ctx     mi.Context
	)

	cmd := &cobra.Command{
		Use:   "encode <operation> [flags] [-- params...]",
		Short: "Print the wire form of an MI command",
		Long: `Print the wire form of an MI command without running gdb.

The leading dash of the operation may be left out. Options are given with
--opt and written in order; values starting with a dash need the --opt=value
form. Everything after "--" is a parameter.

Examples:
  gdbmi encode break-insert --opt=-t -- main
  gdbmi encode exec-continue --thread 2 --token 7`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 0 {
				dash = len(args)
			}
			if dash != 1 {
				return fmt.Errorf("encode takes one operation before \"--\", got %d", dash)
			}

			op := args[0]
			if !strings.HasPrefix(op, "-") {
				op = "-" + op
			}
			c := mi.NewCommand(op, args[dash:]...).WithOptions(options...).WithContext(ctx)

			var wire string
			if token > 0 {
				wire = string(c.Encode(token))
			} else {
				wire = c.String()
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), wire)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&options, "opt", nil, "option written after the operation (repeatable)")
	cmd.Flags().Uint64Var(&token, "token", 0, "token to prefix the command with")
	cmd.Flags().StringVar(&ctx.ThreadGroup, "thread-group", "", "thread group id")
	cmd.Flags().StringVar(&ctx.Thread, "thread", "", "thread id")
	cmd.Flags().StringVar(&ctx.Frame, "frame", "", "frame level")
	return cmd
}
