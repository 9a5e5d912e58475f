package cli

import (
	"io"

	"github.com/spf13/cobra"
)

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type GlobalOptions struct {
	ConfigPath string
	Backend    string
	DBPath     string
	JSON       bool
	Quiet      bool
}

type commandDeps struct {
	out     io.Writer
	globals *GlobalOptions
	build   BuildInfo
}

func NewRootCommand(out io.Writer, build BuildInfo) *cobra.Command {
	globals := &GlobalOptions{}
	cmd := &cobra.Command{
		Use:           "agrotech",
		Short:         "AgroTech herd records",
		Long:          "Manage livestock records stored in a local SQLite database or a single-blob key-value file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageErrorf("%v", err)
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.ConfigPath, "config", "", "Config file path")
	flags.StringVar(&globals.Backend, "backend", "", "Storage backend: auto, sqlite or blob")
	flags.StringVar(&globals.DBPath, "db", "", "Data file for the selected backend (\":memory:\" for a throwaway store)")
	flags.BoolVar(&globals.JSON, "json", false, "Print machine-readable JSON")
	flags.BoolVar(&globals.Quiet, "quiet", false, "Suppress non-essential output and logs")

	deps := commandDeps{out: out, globals: globals, build: build}
	cmd.AddCommand(
		newAnimalCommand(deps),
		newSchemaCommand(deps),
		newServeCommand(deps),
		newDoctorCommand(deps),
		newVersionCommand(deps),
	)
	cmd.InitDefaultCompletionCmd()
	return cmd
}
