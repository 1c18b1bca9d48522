// Command sendsms submits one outbound SMS to a running smsgwd via its
// local UNIX-socket HTTP API.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"

	flags "github.com/jessevdk/go-flags"
)

type options struct {
	Socket  string `short:"s" long:"socket" default:"/var/run/smsgwd/smsgwd.sock" description:"path to the gateway's local API socket"`
	Number  string `short:"n" long:"number" required:"true" description:"recipient phone number, or \"*\" to broadcast, or a configured user name"`
	Message string `short:"m" long:"message" required:"true" description:"the message text to send"`
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type sendResponse struct {
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", opts.Socket)
			},
		},
	}

	body, err := json.Marshal(sendRequest{Phone: opts.Number, Message: opts.Message})
	if err != nil {
		fmt.Fprintln(os.Stderr, "encode request:", err)
		os.Exit(1)
	}

	resp, err := client.Post("http://unix/send", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "send:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintln(os.Stderr, "decode response:", err)
		os.Exit(1)
	}
	if result.Status != 0 {
		fmt.Fprintln(os.Stderr, "gateway rejected send:", result.Error)
		os.Exit(1)
	}
	fmt.Println("queued")
}
