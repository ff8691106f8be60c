// Command client is a line-oriented websocket driver for poking at a
// running arena by hand. Each stdin line is "<event> [json payload]".
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type frame struct {
	Event string          `json:"event"`
	Ack   int64           `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var (
	serverURL string
	username  string
	roomName  string
	nextAck   int64
)

func send(c *websocket.Conn, event string, data json.RawMessage) error {
	f := frame{Event: event, Ack: atomic.AddInt64(&nextAck, 1), Data: data}
	log.Printf("-> SENT %s (ack %d): %s", f.Event, f.Ack, string(f.Data))
	return c.WriteJSON(f)
}

// parseLine splits "<event> {json}" into its parts.
func parseLine(line string) (string, json.RawMessage, error) {
	event, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return event, nil, nil
	}
	if !json.Valid([]byte(rest)) {
		return "", nil, fmt.Errorf("payload is not valid JSON: %s", rest)
	}
	return event, json.RawMessage(rest), nil
}

func run(cmd *cobra.Command, args []string) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	log.Printf("Connecting to %s", serverURL)

	c, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f frame
			if err := c.ReadJSON(&f); err != nil {
				log.Println("Read error:", err)
				return
			}
			if f.Ack != 0 {
				log.Printf("<- RECV %s (ack %d): %s", f.Event, f.Ack, string(f.Data))
			} else {
				log.Printf("<- RECV %s: %s", f.Event, string(f.Data))
			}
		}
	}()

	if roomName != "" && username != "" {
		payload, _ := json.Marshal(map[string]string{"room": roomName, "username": username})
		if err := send(c, "joinRoom", payload); err != nil {
			return err
		}
	}
	log.Println(`Client started. Type e.g. setReady {"room":"r1","isReady":true}`)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			event, data, err := parseLine(line)
			if err != nil {
				log.Println(err)
				continue
			}
			if err := send(c, event, data); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
		}
	}
}

func main() {
	root := &cobra.Command{
		Use:   "client",
		Short: "Interactive websocket client for the arena server",
		RunE:  run,
	}
	root.Flags().StringVar(&serverURL, "url", "ws://localhost:3000/ws", "arena websocket endpoint")
	root.Flags().StringVar(&username, "username", "", "join --room as this user on connect")
	root.Flags().StringVar(&roomName, "room", "", "room to join on connect")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
