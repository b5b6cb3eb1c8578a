package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-layout/pkg/ctypes"
	"github.com/raymyers/ralph-layout/pkg/decl"
	"github.com/raymyers/ralph-layout/pkg/dwarfimport"
	"github.com/raymyers/ralph-layout/pkg/layout"
	"github.com/raymyers/ralph-layout/pkg/machdesc"
	"github.com/raymyers/ralph-layout/pkg/platform"
	"github.com/raymyers/ralph-layout/pkg/report"
)

var version = "0.1.0"

// Target selection flags, shared by the subcommands
var (
	osName      string
	cpuName     string
	bigEndian   bool
	structAlign int64
	profiles    []string
)

// Output flags
var (
	format   string
	symbolic bool
	strict   bool
	verbose  bool
)

// ErrMismatch is returned by `dwarf --strict` when computed layouts disagree
// with the compiler's.
var ErrMismatch = errors.New("layout mismatch")

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ralph-layout",
		Short: "ralph-layout computes C struct and union layouts for many targets",
		Long: `ralph-layout lays out C structs and unions once, with sizes and
offsets kept symbolic in the primitive type sizes, and evaluates the
result against the machine description of each target platform.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log layout and probe decisions to stderr")

	rootCmd.AddCommand(
		newLayoutCmd(out, errOut),
		newMachineCmd(out, errOut),
		newAlignCmd(out, errOut),
		newBitsCmd(out, errOut),
		newProfilesCmd(out),
		newDwarfCmd(out, errOut),
	)
	return rootCmd
}

func setupLogging() {
	logger := zap.NewNop()
	if verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	layout.SetLogger(logger)
	machdesc.SetLogger(logger)
}

func addTargetFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&osName, "os", "", "Target operating system (default: host)")
	cmd.Flags().StringVar(&cpuName, "cpu", "", "Target CPU architecture (default: host)")
	cmd.Flags().BoolVar(&bigEndian, "big-endian", false, "Target is big endian")
}

// target resolves --os and --cpu, defaulting each to the host. The boolean
// reports whether the host platform was selected.
func target() (platform.OSType, platform.CPUArch, bool, error) {
	hostOS, hostCPU := platform.Host()
	if osName == "" && cpuName == "" {
		return hostOS, hostCPU, true, nil
	}
	o, a := hostOS, hostCPU
	var err error
	if osName != "" {
		if o, err = platform.ParseOS(osName); err != nil {
			return o, a, false, err
		}
	}
	if cpuName != "" {
		if a, err = platform.ParseArch(cpuName); err != nil {
			return o, a, false, err
		}
	}
	return o, a, false, nil
}

// targetDescription pairs a display name with a machine description.
type targetDescription struct {
	name string
	md   *machdesc.MachineDescription
}

// descriptions returns the machine descriptions selected by --profile, or
// the static profile of the target platform.
func descriptions(o platform.OSType, a platform.CPUArch, littleEndian bool) ([]targetDescription, error) {
	if len(profiles) == 0 {
		cfg := machdesc.Static(o, a, littleEndian)
		return []targetDescription{{cfg.String(), cfg.Description()}}, nil
	}
	var out []targetDescription
	for _, name := range splitList(strings.Join(profiles, ",")) {
		switch name {
		case "all":
			for _, cfg := range machdesc.StaticConfigs() {
				out = append(out, targetDescription{cfg.String(), cfg.Description()})
			}
			continue
		case "family":
			c32, c64 := machdesc.Family32And64(o)
			out = append(out,
				targetDescription{c32.String(), c32.Description()},
				targetDescription{c64.String(), c64.Description()})
			continue
		}
		cfg, ok := machdesc.LookupStaticConfig(name)
		if !ok {
			return nil, fmt.Errorf("unknown profile %q (see `ralph-layout profiles`)", name)
		}
		out = append(out, targetDescription{cfg.String(), cfg.Description()})
	}
	return out, nil
}

// newLayout builds the layout engine for --struct-align or the target's
// platform rule.
func newLayout(o platform.OSType, a platform.CPUArch) (*layout.Layout, error) {
	if structAlign != 0 {
		return layout.New(0, structAlign), nil
	}
	return layout.ForPlatform(o, a)
}

// outputFormat resolves --format auto to a table on terminals and YAML
// otherwise.
func outputFormat(out io.Writer) (report.Format, error) {
	if format != "auto" {
		return report.ParseFormat(format)
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return report.FormatTable, nil
	}
	return report.FormatYAML, nil
}

func newLayoutCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout FILE [TYPE...]",
		Short: "Lay out the structs and unions declared in a YAML file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doLayout(args[0], args[1:], out, errOut)
		},
	}
	addTargetFlags(cmd)
	cmd.Flags().StringArrayVarP(&profiles, "profile", "p", nil, "Evaluate against static profiles (repeatable or comma-separated, \"family\" or \"all\")")
	cmd.Flags().Int64Var(&structAlign, "struct-align", 0, "Override the struct alignment of the target platform")
	cmd.Flags().StringVarP(&format, "format", "f", "auto", "Output format: table, yaml or auto")
	cmd.Flags().BoolVar(&symbolic, "symbolic", false, "Print symbolic offsets and sizes instead of evaluating them")
	return cmd
}

func doLayout(filename string, names []string, out, errOut io.Writer) error {
	set, err := decl.Load(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	o, a, _, err := target()
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	lay, err := newLayout(o, a)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	if err := lay.LayoutAll(set.Aggregates); err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %s: %v\n", filename, err)
		return err
	}

	selected := set.Aggregates
	if len(names) > 0 {
		selected = nil
		for _, name := range names {
			agg, ok := set.Lookup(name)
			if !ok {
				err := fmt.Errorf("%w: %s", decl.ErrUnknownType, name)
				fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
				return err
			}
			selected = append(selected, agg)
		}
	}

	if symbolic {
		printSymbolic(out, selected)
		return nil
	}

	targets, err := descriptions(o, a, !bigEndian)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	f, err := outputFormat(out)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	ev, err := report.NewEvaluator(report.DefaultCacheSize)
	if err != nil {
		return err
	}
	var reports []*report.Report
	for _, td := range targets {
		r, err := ev.Build(td.name, selected, td.md)
		if err != nil {
			fmt.Fprintf(errOut, "ralph-layout: %s: %v\n", td.name, err)
			return err
		}
		reports = append(reports, r)
	}
	return report.Write(out, f, reports...)
}

func printSymbolic(out io.Writer, aggs []*ctypes.Aggregate) {
	for _, agg := range aggs {
		size, _ := agg.Size()
		fmt.Fprintf(out, "%s: size %s\n", agg, size)
		for _, f := range agg.Fields {
			off, _ := f.Offset()
			fmt.Fprintf(out, "  %s %s: offset %s\n", f.Type, f.Name, off)
		}
	}
}

// machineOutput is the YAML shape printed by the machine subcommand.
type machineOutput struct {
	OS              string                       `yaml:"os"`
	CPU             string                       `yaml:"cpu"`
	StructAlignment int64                        `yaml:"struct_alignment,omitempty"`
	Profile         string                       `yaml:"profile"`
	Static          *machdesc.MachineDescription `yaml:"static"`
	Runtime         *machdesc.MachineDescription `yaml:"runtime,omitempty"`
	RuntimeStatus   string                       `yaml:"runtime_status"`
}

func newMachineCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machine",
		Short: "Print the static and runtime machine descriptions of a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return doMachine(out, errOut)
		},
	}
	addTargetFlags(cmd)
	return cmd
}

func doMachine(out, errOut io.Writer) error {
	o, a, host, err := target()
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}

	// Only the host can be probed; other targets get the static profile.
	r := machdesc.NewResolver(o, a, !bigEndian)
	if host && bigEndian == cpu.IsBigEndian {
		r = machdesc.Default()
	}
	res := machineOutput{
		OS:            o.String(),
		CPU:           a.String(),
		Profile:       r.StaticConfig().String(),
		Static:        r.Static(),
		RuntimeStatus: "unavailable",
	}
	if align, err := platform.StructAlignment(o, a); err == nil {
		res.StructAlignment = align
	}
	rt, err := r.Runtime()
	switch {
	case err != nil:
		res.RuntimeStatus = "error: " + err.Error()
	case rt != nil:
		res.Runtime = rt
		res.RuntimeStatus = "ok"
		if _, err := r.Validate(); err != nil {
			res.RuntimeStatus = "mismatch"
			fmt.Fprintf(errOut, "ralph-layout: warning: %v\n", err)
		}
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(res); err != nil {
		return err
	}
	return enc.Close()
}

func newAlignCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Print the struct alignment used for nested aggregates on a target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, a, _, err := target()
			if err != nil {
				fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
				return err
			}
			align, err := platform.StructAlignment(o, a)
			if err != nil {
				fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
				return err
			}
			fmt.Fprintf(out, "%s/%s: %d\n", o, a, align)
			return nil
		},
	}
	addTargetFlags(cmd)
	return cmd
}

func newBitsCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bits",
		Short: "Print the pointer width of the host, or of --os/--cpu by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bits int
			var err error
			if osName == "" && cpuName == "" {
				bits, err = platform.HostBitWidth()
			} else {
				// Names are matched as reported by the OS, without a probe.
				bits, err = platform.BitWidth(nil, osName, cpuName)
			}
			if err != nil {
				fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
				return err
			}
			fmt.Fprintln(out, bits)
			return nil
		},
	}
	cmd.Flags().StringVar(&osName, "os", "", "OS name, e.g. \"Linux\" or \"Mac OS X\"")
	cmd.Flags().StringVar(&cpuName, "cpu", "", "CPU name, e.g. \"amd64\" or \"sparcv9\"")
	return cmd
}

func newProfilesCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the static machine description profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, cfg := range machdesc.StaticConfigs() {
				fmt.Fprintf(out, "%-16s %s\n", cfg, cfg.Description().ShortString())
			}
			return nil
		},
	}
}

func newDwarfCmd(out, errOut io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dwarf BINARY",
		Short: "Check computed layouts against a binary's DWARF debug info",
		Long: `Imports every named struct and union from the binary's debug info,
lays them out for the binary's platform and reports each size or offset
that differs from what the compiler recorded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return doDwarf(args[0], out, errOut)
		},
	}
	cmd.Flags().StringArrayVarP(&profiles, "profile", "p", nil, "Evaluate against a static profile instead of the binary's")
	cmd.Flags().Int64Var(&structAlign, "struct-align", 0, "Override the struct alignment of the binary's platform")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when any layout differs")
	return cmd
}

func doDwarf(filename string, out, errOut io.Writer) error {
	bin, err := dwarfimport.Open(filename)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	data, err := bin.DWARF()
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	imp := dwarfimport.NewImporter(dwarfimport.WithLogger(layout.Logger()))
	res, err := imp.Import(data)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %s: %v\n", filename, err)
		return err
	}
	lay, err := newLayout(bin.OS, bin.CPU)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %s: %v\n", filename, err)
		return err
	}
	targets, err := descriptions(bin.OS, bin.CPU, bin.LittleEndian)
	if err != nil {
		fmt.Fprintf(errOut, "ralph-layout: %v\n", err)
		return err
	}
	md := targets[0].md

	ev, err := report.NewEvaluator(report.DefaultCacheSize)
	if err != nil {
		return err
	}
	var mismatches []dwarfimport.Mismatch
	checked := 0
	for _, rec := range res.Records {
		if err := lay.LayoutAll([]*ctypes.Aggregate{rec.Aggregate}); err != nil {
			fmt.Fprintf(errOut, "ralph-layout: skipping %s: %v\n", rec.Aggregate, err)
			continue
		}
		got, err := ev.Evaluate(rec.Aggregate, md)
		if err != nil {
			fmt.Fprintf(errOut, "ralph-layout: skipping %s: %v\n", rec.Aggregate, err)
			continue
		}
		checked++
		mismatches = append(mismatches, rec.Compare(got)...)
	}

	fmt.Fprintf(out, "%s: %s/%s, %s\n", filename, bin.OS, bin.CPU, targets[0].name)
	for _, m := range mismatches {
		fmt.Fprintln(out, "  "+m.String())
	}
	fmt.Fprintf(out, "checked %d, skipped %d, mismatches %d\n", checked, len(res.Skipped), len(mismatches))
	if verbose {
		for _, s := range res.Skipped {
			fmt.Fprintf(errOut, "ralph-layout: skipped %s: %v\n", s.Name, s.Err)
		}
	}
	if strict && len(mismatches) > 0 {
		return fmt.Errorf("%w: %d differences", ErrMismatch, len(mismatches))
	}
	return nil
}

// splitList splits a comma-separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
