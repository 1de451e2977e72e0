package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"filemesh/pkg/node"
)

var (
	serveShareDir  string
	serveAdminAddr string
	servePeerSeeds []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the node: discovery, file serving, and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		sink := newSink()

		n, err := node.New(node.Config{
			ShareDir:  serveShareDir,
			AdminAddr: serveAdminAddr,
			PeerSeeds: servePeerSeeds,
			Sink:      sink,
		})
		if err != nil {
			return err
		}
		if err := n.Start(); err != nil {
			return err
		}

		n.SendDiscoveryRequest()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		sink.Log("filemesh: shutting down")
		return n.Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveShareDir, "share-dir", ".", "directory whose files are advertised to peers")
	serveCmd.Flags().StringVar(&serveAdminAddr, "admin-addr", "127.0.0.1:9090", "loopback address for the read-only admin API (empty disables it)")
	serveCmd.Flags().StringSliceVar(&servePeerSeeds, "peer", nil, "host:port of a peer to register immediately (repeatable)")
}
