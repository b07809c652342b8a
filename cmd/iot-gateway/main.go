// Command iot-gateway is a minimal example program demonstrating
// engine.Listen end to end (spec.md §1 lists "example programs" as an
// external collaborator, out of the core's scope). It accepts TCP
// connections, routes inbound REQUEST/SIGNAL frames by path, and prints
// what it handles — the gateway side of the protocol's device/gateway
// pair.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"iot-proto/engine"
	"iot-proto/middleware"
	"iot-proto/router"
	"iot-proto/stream"
)

type pingArgs struct {
	Message string `json:"message"`
}

type pingReply struct {
	Echo string `json:"echo"`
}

var (
	serveAddress string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept device connections and route inbound frames by path",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", ":9090", "TCP address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	ln, err := stream.Listen("tcp", serveAddress)
	if err != nil {
		return fmt.Errorf("iot-gateway: listen: %w", err)
	}
	defer ln.Close()

	eng := engine.New(engine.DefaultOptions())
	eng.Use(middleware.Logging(log.Default()))

	r := router.New(eng)
	if err := r.Register("/ping", func(a *pingArgs, reply *pingReply) error {
		reply.Echo = a.Message
		return nil
	}); err != nil {
		return err
	}
	r.Install()

	log.Printf("iot-gateway: listening on %s", ln.Addr())
	return ln.Serve(func(ts *stream.TCPStream) {
		log.Printf("iot-gateway: device connected from %s", ts.RemoteAddr())
		eng.Listen(ts)
	})
}

func main() {
	root := &cobra.Command{
		Use:   "iot-gateway",
		Short: "Example gateway program for the IoT protocol engine",
	}
	root.AddCommand(serveCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
