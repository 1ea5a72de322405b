// Package main provides a CLI observer for connecting to the sync server.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marcinbunsch/overseer-sub001/protocol"
)

// Client represents a WebSocket observer client.
type Client struct {
	conn           *websocket.Conn
	conversationID string
	done           chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	return c.conn.Close()
}

// SendHello sends a hello message and waits for hello_ack.
func (c *Client) SendHello(apiKey string) error {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{
			Type: protocol.TypeHello,
			Ts:   time.Now().UnixMilli(),
		},
		APIKey: apiKey,
		ClientMeta: map[string]string{
			"client": "overseer-cli",
		},
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read hello_ack: %w", err)
	}

	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return fmt.Errorf("unmarshal hello_ack: %w", err)
	}

	if base.Type == protocol.TypeError {
		var errMsg protocol.ErrorMessage
		json.Unmarshal(data, &errMsg)
		return fmt.Errorf("hello failed: %s - %s", errMsg.Code, errMsg.Message)
	}

	if base.Type != protocol.TypeHelloAck {
		return fmt.Errorf("expected hello_ack, got: %s", base.Type)
	}

	return nil
}

// Subscribe binds the client to a conversation, replaying missed events.
func (c *Client) Subscribe(conversationID, project string, lastSeq int64) error {
	msg := protocol.SubscribeMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeSubscribe,
			Ts:             time.Now().UnixMilli(),
			ConversationID: conversationID,
		},
		Project: project,
		LastSeq: lastSeq,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	c.conversationID = conversationID
	return nil
}

// SendUserMessage submits user input to the subscribed conversation.
func (c *Client) SendUserMessage(content string) error {
	msg := protocol.UserMessageMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeUserMessage,
			Ts:             time.Now().UnixMilli(),
			ConversationID: c.conversationID,
		},
		Content: content,
	}
	return c.conn.WriteJSON(msg)
}

// SendToolDecision resolves a pending tool-use approval.
func (c *Client) SendToolDecision(requestID, decision, reason string) error {
	msg := protocol.ToolDecisionMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeToolDecision,
			Ts:             time.Now().UnixMilli(),
			ConversationID: c.conversationID,
			RequestID:      requestID,
		},
		Decision: decision,
		Reason:   reason,
	}
	return c.conn.WriteJSON(msg)
}

// SendPlanDecision resolves a pending plan review.
func (c *Client) SendPlanDecision(approved bool, reason string) error {
	msg := protocol.PlanDecisionMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypePlanDecision,
			Ts:             time.Now().UnixMilli(),
			ConversationID: c.conversationID,
		},
		Approved: approved,
		Reason:   reason,
	}
	return c.conn.WriteJSON(msg)
}

// SendInterrupt stops the conversation's current turn.
func (c *Client) SendInterrupt() error {
	msg := protocol.InterruptMessage{
		BaseMessage: protocol.BaseMessage{
			Type:           protocol.TypeInterrupt,
			Ts:             time.Now().UnixMilli(),
			ConversationID: c.conversationID,
		},
	}
	return c.conn.WriteJSON(msg)
}

// ReadMessages reads and prints frames from the server.
func (c *Client) ReadMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}

			var base protocol.BaseMessage
			if err := json.Unmarshal(data, &base); err != nil {
				log.Printf("Unmarshal error: %v", err)
				continue
			}

			var prettyJSON map[string]interface{}
			json.Unmarshal(data, &prettyJSON)
			formatted, _ := json.MarshalIndent(prettyJSON, "", "  ")
			fmt.Printf("\n[%s] Received:\n%s\n", base.Type, string(formatted))
		}
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ws", "WebSocket server address")
	apiKey := flag.String("api-key", "", "API key for authentication")
	conversationID := flag.String("conversation", "", "Conversation ID to observe")
	project := flag.String("project", "", "Project the conversation belongs to")
	lastSeq := flag.Int64("last-seq", 0, "Replay stored events after this sequence number")
	flag.Parse()

	log.SetFlags(log.Ltime)

	if *conversationID == "" {
		log.Fatal("-conversation is required")
	}

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	fmt.Println("Connected. Sending hello...")

	if err := client.SendHello(*apiKey); err != nil {
		log.Fatalf("Hello failed: %v", err)
	}

	if err := client.Subscribe(*conversationID, *project, *lastSeq); err != nil {
		log.Fatalf("Subscribe failed: %v", err)
	}

	fmt.Printf("Observing conversation: %s\n", *conversationID)
	fmt.Println("\nType a message and press Enter to send.")
	fmt.Println("Commands: /approve <id>, /deny <id> [reason], /plan approve|deny [reason], /interrupt, /quit")

	go client.ReadMessages()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}

			if err := handleInput(client, input); err != nil {
				log.Printf("Send error: %v", err)
				continue
			}
			if input == "/quit" {
				return
			}
		}
	}
}

// handleInput routes a REPL line to the matching client call.
func handleInput(client *Client, input string) error {
	switch {
	case input == "/quit":
		fmt.Println("Bye!")
		return nil

	case input == "/interrupt":
		return client.SendInterrupt()

	case strings.HasPrefix(input, "/approve "):
		return client.SendToolDecision(strings.TrimSpace(strings.TrimPrefix(input, "/approve ")), "approve", "")

	case strings.HasPrefix(input, "/deny "):
		fields := strings.SplitN(strings.TrimPrefix(input, "/deny "), " ", 2)
		reason := ""
		if len(fields) == 2 {
			reason = fields[1]
		}
		return client.SendToolDecision(fields[0], "deny", reason)

	case strings.HasPrefix(input, "/plan "):
		fields := strings.SplitN(strings.TrimPrefix(input, "/plan "), " ", 2)
		reason := ""
		if len(fields) == 2 {
			reason = fields[1]
		}
		switch fields[0] {
		case "approve":
			return client.SendPlanDecision(true, reason)
		case "deny":
			return client.SendPlanDecision(false, reason)
		default:
			fmt.Println("Usage: /plan approve|deny [reason]")
			return nil
		}

	default:
		return client.SendUserMessage(input)
	}
}
