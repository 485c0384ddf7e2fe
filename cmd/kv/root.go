package kv

import (
	"github.com/ValentinKolb/skipstore/cmd/util"
	"github.com/spf13/cobra"
)

var (
	session *util.Session

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value operations on a local store",
		PersistentPreRunE:  openSession,
		PersistentPostRunE: closeSession,
	}
)

func init() {
	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(removeCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(aboveCmd)
	KeyValueCommands.AddCommand(belowCmd)
	KeyValueCommands.AddCommand(refCmd)
	KeyValueCommands.AddCommand(derefCmd)
	KeyValueCommands.AddCommand(lenCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// openSession opens the store and the map kept in it
func openSession(cmd *cobra.Command, _ []string) (err error) {
	session, err = util.OpenSession(cmd)
	return err
}

// closeSession flushes and closes the map and the store
func closeSession(*cobra.Command, []string) error {
	if session == nil {
		return nil
	}
	err := session.Close()
	session = nil
	return err
}
