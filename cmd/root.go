package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/skipstore/cmd/inspect"
	"github.com/ValentinKolb/skipstore/cmd/kv"
	"github.com/ValentinKolb/skipstore/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "skipstore",
		Short: "embedded disk-backed key-value engine",
		Long: fmt.Sprintf(`skipstore (v%s)

An embedded key-value storage engine written in Go. Keys are indexed by
persisted skip lists, optionally sharded by key hash, on top of a byte heap
kept in a file, a memory-mapped file or in memory.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of skipstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("skipstore v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(inspect.InspectCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupEngineFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
