package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/subosito/gotenv"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	gotenv.Load()

	baseURL := os.Getenv("RELAY_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	prompt := "Outline a launch plan for a note-taking app."
	if len(os.Args) > 1 {
		prompt = strings.Join(os.Args[1:], " ")
	}

	fmt.Println("🚀 Starting chat streaming test...")

	token, err := mintToken(os.Getenv("RELAY_JWT_SECRET"))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	if err := streamChat(baseURL, token, prompt); err != nil {
		log.Fatalf("Failed to stream chat: %v", err)
	}

	fmt.Println("\n✅ Chat streaming test completed successfully!")
}

// mintToken signs a short-lived token when the server requires auth.
func mintToken(secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "chat-relay",
		Subject:   "smoke-test",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
	})
	return token.SignedString([]byte(secret))
}

func streamChat(baseURL, token, prompt string) error {
	payload, err := json.Marshal(map[string]string{"message": prompt})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 3 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	frames := 0
	start := time.Now()
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "data: [DONE]":
			fmt.Printf("\n📊 %d frames in %v\n", frames, time.Since(start).Round(time.Millisecond))
			return nil
		case strings.HasPrefix(line, "data: ERROR "):
			return fmt.Errorf("upstream failed: %s", strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, "data: "):
			fmt.Print(strings.TrimPrefix(line, "data: "))
			frames++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return fmt.Errorf("stream ended without terminator after %d frames", frames)
}
