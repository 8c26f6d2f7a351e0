// Command ws_smoke connects two users to a running server, opens a room
// between them and walks one message through sent, delivered and seen.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"dmcore-backend/internal/auth"
	"dmcore-backend/internal/config"
	"dmcore-backend/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	flag.Parse()
	_ = godotenv.Load()

	jwtManager := auth.NewJWTManager(config.New())
	alice, bob := uuid.New(), uuid.New()
	aliceToken, err := jwtManager.GenerateToken(alice)
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	bobToken, _ := jwtManager.GenerateToken(bob)

	// 1. Open room over REST
	body, _ := json.Marshal(map[string]string{"peer_id": bob.String()})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/v1/rooms", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("open room: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		log.Fatalf("open room failed with status %d: %s", resp.StatusCode, raw)
	}
	var room struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		log.Fatalf("decode room: %v", err)
	}
	fmt.Println("Room:", room.ID)

	// 2. Connect both users
	wsURL := "ws" + strings.TrimPrefix(*baseURL, "http") + "/api/v1/ws?token="
	aliceConn := dial(wsURL + aliceToken)
	defer aliceConn.Close()
	bobConn := dial(wsURL + bobToken)
	defer bobConn.Close()

	// 3. Send and read
	send(aliceConn, realtime.EventSendMessage, realtime.SendMessage{RoomID: room.ID, Type: "text", Payload: "hi"})
	expect(aliceConn, realtime.EventMessageDelivered)
	expect(bobConn, realtime.EventNewMessage)

	send(bobConn, realtime.EventMarkRead, realtime.MarkRead{RoomID: room.ID})
	expect(aliceConn, realtime.EventMessagesRead)
	fmt.Println("OK")
}

func dial(url string) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		log.Fatalf("dial failed (status %d): %v", status, err)
	}
	return conn
}

func send(conn *websocket.Conn, event string, data any) {
	raw, _ := json.Marshal(data)
	if err := conn.WriteJSON(realtime.Envelope{Event: event, Data: raw}); err != nil {
		log.Fatalf("write %s: %v", event, err)
	}
}

// expect reads frames until one named event arrives.
func expect(conn *websocket.Conn, event string) {
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var env realtime.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			log.Fatalf("waiting for %s: %v", event, err)
		}
		fmt.Printf("<- %s %s\n", env.Event, env.Data)
		if env.Event == event {
			return
		}
		if env.Event == realtime.EventError {
			log.Fatalf("server error while waiting for %s", event)
		}
	}
}
