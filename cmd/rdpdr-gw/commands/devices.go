package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/corerdp/rdpdr/pkg/config"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect the configured device specs",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured devices",
	RunE:  runDevicesList,
}

func init() {
	devicesCmd.AddCommand(devicesListCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Type", "Path", "Driver", "Automount"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, d := range cfg.Devices {
		automount := ""
		if d.Automount {
			automount = "yes"
		}
		table.Append([]string{d.Name, d.Type, d.Path, d.Driver, automount})
	}

	table.Render()
	return nil
}
