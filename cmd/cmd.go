package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/relight/relight/convert"
	"github.com/relight/relight/envconfig"
	"github.com/relight/relight/format"
	"github.com/relight/relight/version"
)

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:     "relight",
		Short:   "IC-Light weight tools",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true

			envconfig.LoadConfig()
			slogSetup()
		},
	}

	convertCmd := &cobra.Command{
		Use:   "convert CHECKPOINT OUTPUT",
		Short: "Convert a diffusers UNet checkpoint to the ldm layout",
		Args:  cobra.ExactArgs(2),
		RunE:  convertHandler,
	}
	convertCmd.Flags().String("dtype", "F16", "Output element type (F16 or F32)")

	inspectCmd := &cobra.Command{
		Use:   "inspect CHECKPOINT",
		Short: "List the tensors in a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectHandler,
	}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Show environment variables and their current values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vars := envconfig.AsMap()

			names := make([]string, 0, len(vars))
			for name := range vars {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				v := vars[name]
				fmt.Printf("%-24s %-8v %s\n", v.Name, v.Value, v.Description)
			}

			return nil
		},
	}

	rootCmd.AddCommand(convertCmd, inspectCmd, envCmd)

	return rootCmd
}

func convertHandler(cmd *cobra.Command, args []string) error {
	dtype, err := cmd.Flags().GetString("dtype")
	if err != nil {
		return err
	}

	in, out := args[0], args[1]

	if kind, err := convert.Detect(in); err != nil {
		return err
	} else if kind != "safetensors" {
		return fmt.Errorf("convert expects a safetensors checkpoint, got %s", kind)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	dir, base := filepath.Split(in)
	if dir == "" {
		dir = "."
	}

	if err := convert.ConvertUnet(os.DirFS(dir), base, f, convert.UnetOptions{OutType: dtype}); err != nil {
		// don't leave a truncated output behind
		os.Remove(out)
		return err
	}

	return nil
}

func inspectHandler(cmd *cobra.Command, args []string) error {
	ts, err := readCheckpoint(args[0])
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "DType", "Shape", "Size"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetNoWhiteSpace(true)
	table.SetBorder(false)
	table.SetTablePadding("  ")

	var params uint64
	for _, t := range ts {
		n := uint64(1)
		for _, d := range t.Shape() {
			n *= d
		}
		params += n

		table.Append([]string{t.Name(), t.DType(), fmt.Sprint(t.Shape()), format.HumanNumber(n)})
	}

	table.Render()
	fmt.Printf("\n%s parameters\n", format.HumanNumber(params))

	return nil
}

func readCheckpoint(p string) ([]convert.Tensor, error) {
	kind, err := convert.Detect(p)
	if err != nil {
		return nil, err
	}

	if kind == "torch" {
		return convert.ParseTorch(nil, p)
	}

	dir, base := filepath.Split(p)
	if dir == "" {
		dir = "."
	}

	return convert.ParseSafetensors(os.DirFS(dir), nil, base)
}
