// Command tcpdemo drives a pair of tcpconn.TCPConnection endpoints in
// process, handing each one's outbound segments directly to the other, to
// exercise the stack end-to-end without a real TUN device; it then runs a
// separate ARP-resolution exchange between two netif.NetworkInterface hosts.
// Packet capture, Ethernet/IP framing
// off an actual wire, and the event loop itself are external collaborators
// this binary plays the role of (see SPEC_FULL.md §6); the core packages it
// wires together know nothing about sockets.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/postmanlabs/go-tcpstack/cfg"
	"github.com/postmanlabs/go-tcpstack/printer"
	"github.com/postmanlabs/go-tcpstack/tcpconn"
)

var rootCmd = &cobra.Command{
	Use:           "tcpdemo",
	Short:         "Send a message over an in-process TCP connection pair.",
	Long:          "tcpdemo wires two TCP connections together in process and transfers a message between them, logging every segment when --debug is set, then demonstrates ARP resolution between two network interfaces.",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runDemo,
}

var message string

func init() {
	rootCmd.Flags().StringVar(&message, "message", "hello from the client", "message for the client to send the server")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
}

func Execute() {
	if _, err := rootCmd.ExecuteC(); err != nil {
		printer.Stderr.Errorf("%s\n", err)
		os.Exit(1)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	tcpCfg, err := cfg.LoadTCPConfig()
	if err != nil {
		return err
	}

	printer.Stderr.Infof("loaded config: capacity=%d initial_rto_ms=%d max_retx_attempts=%d\n",
		tcpCfg.ReceiveCapacity, tcpCfg.InitialRTOMillis, tcpCfg.MaxRetxAttempts)

	client := tcpconn.New(tcpCfg, 100)
	server := tcpconn.New(tcpCfg, 900)

	clock := newLogicalClock()
	runLoopback(client, server, []byte(message), clock)

	return nil
}

func main() {
	Execute()
}
