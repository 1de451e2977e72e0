package main

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"filemesh/pkg/peertable"
	"filemesh/pkg/transfer"
)

var (
	searchPeers []string
	searchOut   string
)

var searchCmd = &cobra.Command{
	Use:   "search <criteria>",
	Short: "Search known peers for filenames containing criteria",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		criteria := args[0]
		peers, err := parsePeerAddrs(searchPeers)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			return fmt.Errorf("filemesh search: at least one --peer is required")
		}

		results := transfer.Search(context.Background(), criteria, peers)
		if len(results) == 0 {
			fmt.Println("no matches found")
			return nil
		}

		for i, r := range results {
			fmt.Printf("%d) %s (from %s)\n", i+1, r.FileName, r.Peer.String())
		}

		if !isInteractive() {
			return nil
		}

		return promptAndDownload(results)
	},
}

// promptAndDownload mirrors the original GUI's "search then
// double-click to download" flow without a GUI: a promptui.Select over
// the matches, followed by an immediate download of the chosen one.
func promptAndDownload(results []transfer.SearchResult) error {
	items := make([]string, len(results))
	for i, r := range results {
		items[i] = fmt.Sprintf("%s (from %s)", r.FileName, r.Peer.String())
	}

	prompt := promptui.Select{
		Label: "Select a file to download",
		Items: items,
	}
	index, _, err := prompt.Run()
	if err != nil {
		return fmt.Errorf("filemesh search: selection cancelled: %w", err)
	}

	chosen := results[index]
	sink := newSink()
	status, err := transfer.Download(chosen.FileName, []peertable.Address{chosen.Peer}, searchOut, sink, nil)
	if err != nil {
		return err
	}
	fmt.Println("download finished with status:", status)
	return nil
}

func parsePeerAddrs(raw []string) ([]peertable.Address, error) {
	addrs := make([]peertable.Address, 0, len(raw))
	for _, s := range raw {
		addr, err := peertable.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("filemesh: invalid --peer %q: %w", s, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func isInteractive() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringSliceVar(&searchPeers, "peer", nil, "host:port of a peer to query (repeatable)")
	searchCmd.Flags().StringVar(&searchOut, "out", ".", "destination directory if a match is selected for download")
}
