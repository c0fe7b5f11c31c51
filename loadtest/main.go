// Load generator for the chat service. Each simulated user is "voiced in":
// a transcription callback creates their chat with admin, then they log in,
// hold a live websocket, and spam text messages at the REST API.
//
// Users u_0..u_N and the admin account must already exist with the password
// below (seed them with invites beforehand).
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	secret    = flag.String("secret", "", "transcription shared secret")
	userCount = flag.Int("users", 50, "number of simulated users")
	msgCount  = flag.Int("messages", 20, "messages per user")
	password  = flag.String("password", "password123", "password of the seeded accounts")
)

func main() {
	flag.Parse()
	if *secret == "" {
		log.Fatal("❌ -secret is required (matches SHARED_SECRET on the server)")
	}

	log.Printf("🔥 STARTING LOAD TEST: %d users, %d messages each...", *userCount, *msgCount)
	var wg sync.WaitGroup
	for i := 0; i < *userCount; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runUser(fmt.Sprintf("u_%d", n))
		}(i)
	}
	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runUser(username string) {
	// 1. Voice the user in: the callback creates (or reuses) their admin chat.
	if !postCallback(username, "load test opening message") {
		return
	}

	// 2. Log in; the session cookie rides along in the jar.
	client, token := login(username)
	if token == "" {
		return
	}

	// 3. Find the chat with admin.
	chatID := firstChatID(client)
	if chatID == 0 {
		log.Printf("❌ No chat for %s", username)
		return
	}

	// 4. Hold a live connection so fan-out has a target.
	conn := connectWs(token, username)
	if conn != nil {
		defer conn.Close()
		go drain(conn)
	}

	// 5. Spam.
	for i := 0; i < *msgCount; i++ {
		body := map[string]any{"chat_id": chatID, "text": fmt.Sprintf("load msg %d from %s", i, username)}
		resp, err := postJSON(client, "/api/send-message", body)
		if err != nil || resp.StatusCode != http.StatusOK {
			log.Printf("❌ Send failed [%s]: %v", username, err)
			break
		}
		resp.Body.Close()
		// Small sleep to avoid an instant localhost bottleneck.
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", username, *msgCount)
}

func postCallback(sender, text string) bool {
	body := map[string]any{
		"secret": *secret,
		"message": map[string]string{
			"sender": sender,
			"text":   text,
		},
	}
	resp, err := postJSON(http.DefaultClient, "/transcription-callback", body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("❌ Callback failed [%s]: %v", sender, err)
		return false
	}
	resp.Body.Close()
	return true
}

func login(username string) (*http.Client, string) {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Jar: jar}

	resp, err := postJSON(client, "/api/login", map[string]string{"username": username, "password": *password})
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("❌ Login failed [%s]: %v", username, err)
		return nil, ""
	}
	resp.Body.Close()

	// /api/me echoes the bearer token the websocket handshake needs.
	meResp, err := client.Get(*baseURL + "/api/me")
	if err != nil || meResp.StatusCode != http.StatusOK {
		log.Printf("❌ Me failed [%s]: %v", username, err)
		return nil, ""
	}
	defer meResp.Body.Close()
	var me struct {
		Token string `json:"token"`
	}
	json.NewDecoder(meResp.Body).Decode(&me)
	return client, me.Token
}

func firstChatID(client *http.Client) int {
	resp, err := client.Get(*baseURL + "/api/chats")
	if err != nil || resp.StatusCode != http.StatusOK {
		return 0
	}
	defer resp.Body.Close()
	var chats []struct {
		ChatID int `json:"chat_id"`
	}
	json.NewDecoder(resp.Body).Decode(&chats)
	if len(chats) == 0 {
		return 0
	}
	return chats[0].ChatID
}

func connectWs(token, username string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		log.Printf("❌ WS connect failed [%s]: %v", username, err)
		return nil
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "token": token}); err != nil {
		log.Printf("❌ WS auth failed [%s]: %v", username, err)
		conn.Close()
		return nil
	}
	return conn
}

// drain keeps reading so pings and fan-out frames don't back up the buffer.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func postJSON(client *http.Client, endpoint string, data any) (*http.Response, error) {
	raw, _ := json.Marshal(data)
	return client.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(raw))
}
