package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"filemesh/pkg/transfer"
)

var (
	getFrom []string
	getOut  string
)

var getCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Download a file directly from an explicit peer list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		peers, err := parsePeerAddrs(getFrom)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			return fmt.Errorf("filemesh get: at least one --from is required")
		}

		sink := newSink()
		status, err := transfer.Download(name, peers, getOut, sink, nil)
		if err != nil {
			return err
		}
		fmt.Println("download finished with status:", status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringSliceVar(&getFrom, "from", nil, "host:port of a peer to download from (repeatable)")
	getCmd.Flags().StringVar(&getOut, "out", ".", "destination directory")
}
