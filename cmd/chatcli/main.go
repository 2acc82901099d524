// Command chatcli is an interactive terminal client for the duochat
// coordination server. It speaks the same WebSocket protocol as the browser
// client: register an identity, invite a peer, chat, end.
//
// Usage:
//
//	chatcli -user alice [-url ws://localhost:8080/ws]
//
// Commands at the prompt:
//
//	/request <user>   invite a user to chat
//	/cancel <user>    withdraw a pending invitation
//	/accept           accept the most recent incoming invitation
//	/decline          decline the most recent incoming invitation
//	/end              end the current chat
//	/status           show session state
//	/quit             exit
//	anything else     send as a chat message to the current partner
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/duochat/chat-app/internal/client"
	"github.com/duochat/chat-app/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "server WebSocket URL")
	user := flag.String("user", "", "user ID to register as (required)")
	flag.Parse()

	if *user == "" {
		fmt.Fprintln(os.Stderr, "chatcli: -user is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, _, err := ws.Dial(ctx, *url)
	cancel()
	if err != nil {
		log.Fatalf("chatcli: dial %s: %v", *url, err)
	}
	defer conn.Close()

	c := &cli{
		conn:    conn,
		userID:  *user,
		machine: client.NewMachine(),
		done:    make(chan struct{}),
	}

	if err := c.send(protocol.RegisterMsg{Type: protocol.TypeRegister, UserID: c.userID}); err != nil {
		log.Fatalf("chatcli: register: %v", err)
	}

	go c.readLoop()
	c.inputLoop()
}

// cli holds the terminal client's connection and session state. The read
// loop and the input loop share it; writes are serialized by writeMu and the
// rest by mu.
type cli struct {
	conn    net.Conn
	userID  string
	machine *client.Machine

	writeMu sync.Mutex
	mu      sync.Mutex
	pending string // last user who invited us
	partner string // current chat partner
	chatID  string

	done chan struct{}
}

func (c *cli) send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// readLoop decodes server events, feeds the session state machine, and
// prints a human-readable line for each.
func (c *cli) readLoop() {
	defer close(c.done)

	for {
		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			fmt.Println("\n* connection closed")
			return
		}

		var ev map[string]interface{}
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		msgType, _ := ev["type"].(string)
		c.machine.Apply(msgType, ev)

		switch msgType {
		case protocol.TypeRegistered:
			fmt.Printf("* registered as %v (conn %v)\n", ev["userId"], ev["connectionId"])

		case protocol.TypeChatRequestReceived:
			from, _ := ev["fromUserId"].(string)
			c.mu.Lock()
			c.pending = from
			c.mu.Unlock()
			fmt.Printf("* %s wants to chat. /accept or /decline\n", from)

		case protocol.TypeChatStarted:
			chatID, _ := ev["chatId"].(string)
			partner, _ := ev["partnerId"].(string)
			c.mu.Lock()
			c.chatID = chatID
			c.partner = partner
			c.pending = ""
			c.mu.Unlock()
			fmt.Printf("* chat started with %s\n", partner)

		case protocol.TypeChatDeclined:
			fmt.Printf("* %v declined your invitation\n", ev["declinedBy"])

		case protocol.TypeChatCancelled:
			c.mu.Lock()
			c.pending = ""
			c.mu.Unlock()
			fmt.Printf("* %v withdrew their invitation\n", ev["cancelledBy"])

		case protocol.TypeMessageReceived:
			fmt.Printf("<%v> %v\n", ev["fromUserId"], ev["message"])

		case protocol.TypeTyping:
			if isTyping, _ := ev["isTyping"].(bool); isTyping {
				fmt.Println("* partner is typing...")
			}

		case protocol.TypeChatEnded:
			c.mu.Lock()
			c.chatID = ""
			c.partner = ""
			c.mu.Unlock()
			fmt.Printf("* chat ended by %v (%v)\n", ev["endedBy"], ev["reason"])

		case protocol.TypeError:
			fmt.Printf("! %v\n", ev["message"])
		}
	}
}

// inputLoop reads stdin commands until EOF, /quit, or the connection drops.
func (c *cli) inputLoop() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Printf("connected as %s. /request <user> to start a chat.\n", c.userID)

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			c.sendChat(line)
			continue
		}

		cmd := strings.Fields(line)
		switch cmd[0] {
		case "/request":
			if len(cmd) < 2 {
				fmt.Println("! usage: /request <user>")
				continue
			}
			if !c.machine.RequestSent() {
				fmt.Println("! finish the current chat or request first")
				continue
			}
			c.sendf(protocol.ChatRequestMsg{
				Type:       protocol.TypeChatRequest,
				FromUserID: c.userID,
				ToUserID:   cmd[1],
			})

		case "/cancel":
			if len(cmd) < 2 {
				fmt.Println("! usage: /cancel <user>")
				continue
			}
			c.machine.RequestCancelled()
			c.sendf(protocol.ChatCancelMsg{
				Type:       protocol.TypeChatCancel,
				FromUserID: c.userID,
				ToUserID:   cmd[1],
			})

		case "/accept":
			c.mu.Lock()
			from := c.pending
			c.mu.Unlock()
			if from == "" {
				fmt.Println("! no pending invitation")
				continue
			}
			c.sendf(protocol.ChatAcceptMsg{
				Type:       protocol.TypeChatAccept,
				FromUserID: from,
				ToUserID:   c.userID,
			})

		case "/decline":
			c.mu.Lock()
			from := c.pending
			c.pending = ""
			c.mu.Unlock()
			if from == "" {
				fmt.Println("! no pending invitation")
				continue
			}
			c.sendf(protocol.ChatDeclineMsg{
				Type:       protocol.TypeChatDecline,
				FromUserID: from,
				ToUserID:   c.userID,
			})

		case "/end":
			c.sendf(protocol.ChatEndMsg{Type: protocol.TypeChatEnd})

		case "/status":
			chatID, partner := c.machine.Chat()
			fmt.Printf("* state=%s chat=%s partner=%s\n", c.machine.State(), chatID, partner)

		case "/quit":
			return

		default:
			fmt.Printf("! unknown command %s\n", cmd[0])
		}
	}
}

func (c *cli) sendChat(text string) {
	c.mu.Lock()
	chatID, partner := c.chatID, c.partner
	c.mu.Unlock()
	if partner == "" {
		fmt.Println("! not in a chat")
		return
	}
	c.sendf(protocol.MessageSendMsg{
		Type:       protocol.TypeMessageSend,
		ChatID:     chatID,
		FromUserID: c.userID,
		ToUserID:   partner,
		Message:    text,
	})
}

func (c *cli) sendf(msg interface{}) {
	if err := c.send(msg); err != nil {
		fmt.Printf("! send failed: %v\n", err)
	}
}
