package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"filemesh/pkg/adminapi"
)

var peersAdminAddr string

// peersCmd lists the peer table of a running filemesh serve process via
// its admin API. Manual peer registration (spec.md §4.2) happens
// in-process instead, through `serve --peer`: the admin API is
// deliberately read-only, so there is no remote write path for a
// separate CLI invocation to register a peer into someone else's
// running node.
var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List the peer table of a running node via its admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := http.Get("http://" + peersAdminAddr + "/peers")
		if err != nil {
			return fmt.Errorf("filemesh peers: %w", err)
		}
		defer resp.Body.Close()

		var views []adminapi.PeerView
		if err := json.NewDecoder(resp.Body).Decode(&views); err != nil {
			return fmt.Errorf("filemesh peers: decoding response: %w", err)
		}

		if len(views) == 0 {
			fmt.Println("no known peers")
			return nil
		}
		for _, v := range views {
			fmt.Printf("%s (last seen %.0fs ago)\n", v.Address, v.AgeSecs)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(peersCmd)
	peersCmd.Flags().StringVar(&peersAdminAddr, "admin-addr", "127.0.0.1:9090", "admin API address of the running node")
}
