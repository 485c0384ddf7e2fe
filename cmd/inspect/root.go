package inspect

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ValentinKolb/skipstore/cmd/util"
	"github.com/spf13/cobra"
)

// InspectCmd prints the configuration, store statistics and map info
var InspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print statistics of a store and the map kept in it",
	Args:  cobra.NoArgs,
	RunE:  inspect,
}

func init() {
	InspectCmd.Flags().Bool("prometheus", false, util.WrapString("Print the store metrics in the Prometheus text format instead"))
}

func inspect(cmd *cobra.Command, _ []string) error {
	session, err := util.OpenSession(cmd)
	if err != nil {
		return err
	}
	defer session.Close()

	if prom, _ := cmd.Flags().GetBool("prometheus"); prom {
		session.Store.Metrics().WritePrometheus(os.Stdout)
		return nil
	}

	fmt.Println("Configuration:")
	fmt.Println(session.Config.String())

	stats, err := json.MarshalIndent(session.Store.Stats(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("\nStore:\n%s\n", stats)

	info, err := json.MarshalIndent(session.Map.Info(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Printf("\nMap:\n%s\n", info)
	return nil
}
