// chatcli is a terminal client for the relay. It prints presence events and
// the messages of one conversation, and sends each line read from stdin as
// a chat message from --sender to --recipient.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/ride-relay/internal/server"
	"github.com/npezzotti/ride-relay/internal/types"
	"github.com/spf13/pflag"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Message     string `json:"message"`
	SenderId    int64  `json:"senderId"`
	RecipientId int64  `json:"recipientId"`
}

func main() {
	var (
		url       string
		origin    string
		sender    int64
		recipient int64
		showAll   bool
	)

	flags := pflag.NewFlagSet("chatcli", pflag.ExitOnError)
	flags.StringVar(&url, "url", "ws://localhost:8000/ws", "relay websocket url")
	flags.StringVar(&origin, "origin", "", "Origin header to send, if any")
	flags.Int64Var(&sender, "sender", 0, "your user id")
	flags.Int64Var(&recipient, "recipient", 0, "user id to send messages to")
	flags.BoolVar(&showAll, "all", false, "print every relayed message, not only this conversation")
	flags.Parse(os.Args[1:])

	logger := log.New(os.Stderr, "[chatcli] ", log.LstdFlags)

	if sender == 0 || recipient == 0 {
		logger.Fatal("--sender and --recipient are required")
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		logger.Fatal("dial: ", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					logger.Println("read:", err)
				}
				return
			}

			line, err := render(raw, sender, recipient, showAll)
			if err != nil {
				logger.Println("decode:", err)
				continue
			}
			if line != "" {
				fmt.Println(line)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := conn.WriteJSON(outbound{
			Message:     scanner.Text(),
			SenderId:    sender,
			RecipientId: recipient,
		}); err != nil {
			logger.Println("write:", err)
			break
		}
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// render formats one relay frame. Messages outside the conversation between
// me and peer are skipped unless all is set; the relay sends every message
// to every connection and leaves the filtering to clients.
func render(raw []byte, me, peer int64, all bool) (string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", err
	}

	switch env.Event {
	case server.EventMessage:
		var ev types.ChatEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return "", err
		}
		mine := (ev.SenderId == me && ev.RecipientId == peer) || (ev.SenderId == peer && ev.RecipientId == me)
		if !mine && !all {
			return "", nil
		}
		return fmt.Sprintf("%s %d -> %d: %s", ev.Date.Local().Format(time.Kitchen), ev.SenderId, ev.RecipientId, ev.Message), nil
	case server.EventConnected, server.EventDisconnected:
		var ev types.PresenceEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s * %s %s", ev.Date.Local().Format(time.Kitchen), ev.ConnectionId, env.Event), nil
	default:
		return "", fmt.Errorf("unknown event %q", env.Event)
	}
}
