// vlower lowers architecture-neutral vector operations to x86-64, AArch64
// and POWER machine code.
//
//	vlower profiles            list the built-in target profiles
//	vlower caps <profile>      print the capability table of a profile
//	vlower lower <job.yaml>    lower the operations of a job file
//	vlower host                show the profile of the running CPU
//
// Defaults come from VLOWER_PROFILE, VLOWER_WIDTH, VLOWER_COMPAT_RCP,
// VLOWER_COMPAT_RSQ, VLOWER_COMPAT_FMA, VLOWER_COMPAT_ROUND and
// VLOWER_VERBOSE.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xyproto/vlower/internal/diag"
)

const versionString = "vlower 0.3.0"

func newRootCmd() *cobra.Command {
	ctx := &CommandContext{}
	root := &cobra.Command{
		Use:           "vlower",
		Short:         "Lower vector operations to machine code",
		Version:       versionString,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := LoadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("verbose") {
				s.Verbose = ctx.Verbose
			}
			ctx.Settings = s
			ctx.Out = cmd.OutOrStdout()
			if s.Verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				diag.SetLogger(l)
			}
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = diag.Logger().Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&ctx.Verbose, "verbose", "v", false, "log every lowering step")
	root.AddCommand(
		newProfilesCmd(ctx),
		newCapsCmd(ctx),
		newLowerCmd(ctx),
		newHostCmd(ctx),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vlower: %v\n", err)
		os.Exit(1)
	}
}
