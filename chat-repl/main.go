package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

const defaultServerURL = "ws://localhost:8080/ws/chat"

type frame struct {
	Type   string `json:"type"`
	Data   string `json:"data"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func main() {
	serverURL := os.Getenv("RELAY_WS_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	if token := os.Getenv("RELAY_TOKEN"); token != "" {
		serverURL += "?token=" + url.QueryEscape(token)
	}

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	// Replies are collected so the whole conversation goes up each turn.
	replies := make(chan string)
	go func() {
		defer close(replies)
		var reply strings.Builder
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				log.Println("Error reading message:", err)
				return
			}
			switch f.Type {
			case "delta":
				fmt.Print(f.Data)
				reply.WriteString(f.Data)
			case "error":
				fmt.Printf("error: %s %s", f.Error, f.Detail)
				reply.Reset()
				replies <- ""
			case "end":
				replies <- reply.String()
				reply.Reset()
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		os.Exit(0)
	}()

	var history []chatMessage
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Chat with the relay (type 'exit' to quit, 'reset' to start over):")
	for {
		fmt.Print("> ")
		text, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		text = strings.TrimSpace(text)
		switch text {
		case "":
			continue
		case "exit":
			return
		case "reset":
			history = nil
			continue
		}

		history = append(history, chatMessage{Role: "user", Content: text})
		payload, _ := json.Marshal(map[string]interface{}{"messages": history})
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Println("Error sending message:", err)
			break
		}

		reply, ok := <-replies
		fmt.Println()
		if !ok {
			break
		}
		if reply == "" {
			history = history[:len(history)-1]
			continue
		}
		history = append(history, chatMessage{Role: "assistant", Content: reply})
	}
}
