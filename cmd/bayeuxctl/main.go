package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/docopt/docopt-go"
)

const BayeuxCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Bayeux control.

The default url is:
    url: http://localhost:8642/bayeux

Usage:
    bayeuxctl handshake [--url=<url>]
    bayeuxctl subscribe [--url=<url>] --client_id=<client_id> <channel>
    bayeuxctl connect [--url=<url>] --client_id=<client_id>
    bayeuxctl publish [--url=<url>] --client_id=<client_id> <channel> <data>
    bayeuxctl disconnect [--url=<url>] --client_id=<client_id>

Options:
    -h --help                Show this screen.
    --version                Show version.
    --url=<url>               Bayeux endpoint URL.
    --client_id=<client_id>  Client id from a prior handshake.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], BayeuxCtlVersion)
	if err != nil {
		panic(err)
	}

	url, _ := opts.String("--url")
	if url == "" {
		url = "http://localhost:8642/bayeux"
	}

	switch {
	case boolOpt(opts, "handshake"):
		handshake(url)
	case boolOpt(opts, "subscribe"):
		subscribe(opts, url)
	case boolOpt(opts, "connect"):
		connectLoop(opts, url)
	case boolOpt(opts, "publish"):
		publish(opts, url)
	case boolOpt(opts, "disconnect"):
		disconnect(opts, url)
	}
}

func boolOpt(opts docopt.Opts, name string) bool {
	v, _ := opts.Bool(name)
	return v
}

func postBatch(url string, messages []map[string]any) []map[string]any {
	body, err := json.Marshal(messages)
	if err != nil {
		Err.Fatalf("failed to encode batch: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		Err.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		Err.Fatalf("failed to read response: %v", err)
	}

	var replies []map[string]any
	if err := json.Unmarshal(raw, &replies); err != nil {
		Err.Fatalf("failed to decode response: %v (body: %s)", err, raw)
	}
	return replies
}

func handshake(url string) {
	replies := postBatch(url, []map[string]any{
		{
			"channel":                  "/meta/handshake",
			"version":                  "1.0",
			"supportedConnectionTypes": []string{"long-polling"},
		},
	})
	printReplies(replies)
}

func subscribe(opts docopt.Opts, url string) {
	clientID, _ := opts.String("--client_id")
	channel, _ := opts.String("<channel>")

	replies := postBatch(url, []map[string]any{
		{
			"channel":      "/meta/subscribe",
			"clientId":     clientID,
			"subscription": channel,
		},
	})
	printReplies(replies)
}

func connectLoop(opts docopt.Opts, url string) {
	clientID, _ := opts.String("--client_id")

	for {
		start := time.Now()
		replies := postBatch(url, []map[string]any{
			{
				"channel":        "/meta/connect",
				"clientId":       clientID,
				"connectionType": "long-polling",
			},
		})
		printReplies(replies)
		if time.Since(start) < 100*time.Millisecond {
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func publish(opts docopt.Opts, url string) {
	clientID, _ := opts.String("--client_id")
	channel, _ := opts.String("<channel>")
	data, _ := opts.String("<data>")

	var payload any
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		payload = data
	}

	replies := postBatch(url, []map[string]any{
		{
			"channel":  channel,
			"clientId": clientID,
			"data":     payload,
		},
	})
	printReplies(replies)
}

func disconnect(opts docopt.Opts, url string) {
	clientID, _ := opts.String("--client_id")

	replies := postBatch(url, []map[string]any{
		{
			"channel":  "/meta/disconnect",
			"clientId": clientID,
		},
	})
	printReplies(replies)
}

func printReplies(replies []map[string]any) {
	for _, reply := range replies {
		out, err := json.Marshal(reply)
		if err != nil {
			Err.Printf("failed to encode reply: %v", err)
			continue
		}
		Out.Println(string(out))
	}
	fmt.Println()
}
