// Command iot-device is a minimal example program demonstrating the
// client side of the protocol engine: dial a gateway, send a REQUEST, and
// print the matching RESPONSE. It is the counterpart of iot-gateway
// (spec.md §1's "example programs" collaborator).
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"iot-proto/codec"
	"iot-proto/engine"
	"iot-proto/router"
	"iot-proto/stream"
)

var (
	dialAddress string
	dialPath    string
	dialMessage string
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a gateway and send one REQUEST frame",
	RunE:  runDial,
}

func init() {
	dialCmd.Flags().StringVar(&dialAddress, "address", "127.0.0.1:9090", "gateway TCP address")
	dialCmd.Flags().StringVar(&dialPath, "path", "/ping", "request path")
	dialCmd.Flags().StringVar(&dialMessage, "message", "hello", "message payload")
}

func runDial(cmd *cobra.Command, args []string) error {
	ts, err := stream.Dial("tcp", dialAddress)
	if err != nil {
		return fmt.Errorf("iot-device: dial: %w", err)
	}

	eng := engine.New(engine.DefaultOptions())
	conn := eng.Listen(ts)

	body, err := codec.GetCodec(codec.CodecTypeJSON).Encode(map[string]string{"message": dialMessage})
	if err != nil {
		return err
	}

	resp, err := eng.Request(conn, dialPath, nil, body)
	if err != nil {
		return fmt.Errorf("iot-device: request: %w", err)
	}

	for _, h := range resp.Headers {
		if h.Key == router.ErrorHeaderKey && h.Value != "" {
			return fmt.Errorf("iot-device: gateway returned error: %s", h.Value)
		}
	}
	log.Printf("iot-device: response id=%d body=%s", resp.ID, string(resp.Body))

	time.Sleep(50 * time.Millisecond)
	return conn.Close()
}

func main() {
	root := &cobra.Command{
		Use:   "iot-device",
		Short: "Example device program for the IoT protocol engine",
	}
	root.AddCommand(dialCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
