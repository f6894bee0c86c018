package main

import (
	"github.com/spf13/cobra"

	"github.com/muurk/aqualogic/internal/transport"
	"github.com/muurk/aqualogic/internal/ui"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List local serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.ListSerialPorts()
		if err != nil {
			return err
		}

		p := ui.NewPrinter(cmd.OutOrStdout())
		if len(ports) == 0 {
			p.PrintWarning("No serial ports found",
				ui.Detail{Key: "Hint", Value: "Check the RS-485 adapter is plugged in"})
			return nil
		}
		details := make([]ui.Detail, len(ports))
		for i, port := range ports {
			details[i] = ui.Detail{Key: "Port", Value: port}
		}
		p.PrintSuccess("Serial ports", details...)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
