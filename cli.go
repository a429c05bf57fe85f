package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/xyproto/vlower/internal/encode"
	"github.com/xyproto/vlower/internal/isa"
	"github.com/xyproto/vlower/internal/profile"
	"github.com/xyproto/vlower/internal/registry"
)

// CommandContext holds what every command needs
type CommandContext struct {
	Settings Settings
	Out      io.Writer
	Verbose  bool
}

func newProfilesCmd(ctx *CommandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the built-in target profiles",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			ps, err := registry.All()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(ctx.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tARCH\tBITS\tLAYOUT\tFEATURES")
			for _, p := range ps {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", p.Name, p.Arch, p.NativeBits, p.Layout(), strings.Join(p.Features, ","))
			}
			return w.Flush()
		},
	}
}

func newCapsCmd(ctx *CommandContext) *cobra.Command {
	var fallbacks bool
	cmd := &cobra.Command{
		Use:   "caps <profile>",
		Short: "Print the capability table of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := registry.Lookup(args[0])
			if err != nil {
				return err
			}
			return printCaps(ctx.Out, p, fallbacks)
		},
	}
	cmd.Flags().BoolVarP(&fallbacks, "fallbacks", "f", false, "only list entries served by a recipe")
	return cmd
}

func printCaps(out io.Writer, p *profile.Profile, onlyFallbacks bool) error {
	entries := p.Entries()
	if onlyFallbacks {
		entries = lo.Filter(entries, func(e profile.Entry, _ int) bool { return e.Cap.Kind == profile.CapFallback })
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\n", e.Key, e.Cap)
	}
	native := lo.CountBy(p.Entries(), func(e profile.Entry) bool { return e.Cap.Kind == profile.CapNative })
	fmt.Fprintf(w, "\n%d entries, %d native\n", len(p.Entries()), native)
	return w.Flush()
}

func newLowerCmd(ctx *CommandContext) *cobra.Command {
	var (
		profileName string
		width       string
		listing     bool
	)
	cmd := &cobra.Command{
		Use:   "lower <job.yaml>",
		Short: "Lower the operations of a job file and print the code",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			job, err := ReadJob(args[0])
			if err != nil {
				return err
			}
			if profileName != "" {
				job.Profile = profileName
			}
			if width != "" {
				job.Width = width
			}
			res, err := job.Run(ctx.Settings)
			if err != nil {
				return err
			}
			if listing {
				fmt.Fprint(ctx.Out, res.Program.String())
				fmt.Fprintln(ctx.Out)
			}
			return dump(ctx.Out, res.Profile.Arch, res.Code)
		},
	}
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "target profile (overrides the job file)")
	cmd.Flags().StringVarP(&width, "width", "w", "", "variable width in bits (overrides the job file)")
	cmd.Flags().BoolVarP(&listing, "list", "l", false, "print the lowered instructions before the code")
	return cmd
}

// dump prints fixed-width code as one word per line and x86 code as rows
// of 16 bytes
func dump(out io.Writer, a isa.Arch, code []byte) error {
	if a.Layout() == isa.LayoutFixed32 {
		for i, word := range encode.Words(code) {
			if _, err := fmt.Fprintf(out, "%06x  %08x\n", i*4, word); err != nil {
				return err
			}
		}
		return nil
	}
	for i, row := range lo.Chunk(code, 16) {
		hex := lo.Map(row, func(b byte, _ int) string { return fmt.Sprintf("%02x", b) })
		if _, err := fmt.Fprintf(out, "%06x  %s\n", i*16, strings.Join(hex, " ")); err != nil {
			return err
		}
	}
	return nil
}

func newHostCmd(ctx *CommandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Show the profile of the running CPU",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			a, features := registry.HostFeatures()
			sort.Strings(features)
			fmt.Fprintf(ctx.Out, "arch:     %s\n", a)
			fmt.Fprintf(ctx.Out, "features: %s\n", strings.Join(features, " "))
			p, err := registry.Host()
			if err != nil {
				return err
			}
			fmt.Fprintf(ctx.Out, "profile:  %s (%d bits)\n", p.Name, p.NativeBits)
			return nil
		},
	}
}
