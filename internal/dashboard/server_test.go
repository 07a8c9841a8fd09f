package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"
)

type staticState struct {
	snap SnapshotData
}

func (s staticState) Snapshot(ctx context.Context) SnapshotData {
	return s.snap
}

func TestServerStartStop(t *testing.T) {
	config := &Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(config)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	addr := server.GetAddr()
	if addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWebSocketSnapshot(t *testing.T) {
	config := &Config{
		Port:   0,
		State:  staticState{snap: SnapshotData{Online: true, Pending: 4}},
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(config)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	// First message is the state snapshot
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read snapshot message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}

	if msg.Type != MessageTypeSnapshot {
		t.Errorf("Expected welcome message type %s, got %s", MessageTypeSnapshot, msg.Type)
	}

	var snap SnapshotData
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if !snap.Online || snap.Pending != 4 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestBroadcastSyncTransitions(t *testing.T) {
	config := &Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(config)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Discard the snapshot
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}

	server.BroadcastSyncStart()
	server.BroadcastSyncEnd(0)

	readMessage := func() Message {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read message: %v", err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return msg
	}

	start := readMessage()
	if start.Type != MessageTypeSyncStart {
		t.Errorf("Expected %s, got %s", MessageTypeSyncStart, start.Type)
	}

	end := readMessage()
	if end.Type != MessageTypeSyncEnd {
		t.Errorf("Expected %s, got %s", MessageTypeSyncEnd, end.Type)
	}

	var depth QueueData
	if err := json.Unmarshal(end.Data, &depth); err != nil {
		t.Fatalf("Failed to unmarshal queue data: %v", err)
	}
	if depth.Pending != 0 {
		t.Errorf("Expected empty queue after sync, got %d pending", depth.Pending)
	}

	if start.Timestamp.IsZero() || end.Timestamp.IsZero() {
		t.Error("Broadcast messages should carry timestamps")
	}
}

func TestBroadcastConnectivity(t *testing.T) {
	config := &Config{
		Port:   0,
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	}

	server := NewServer(config)

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read snapshot: %v", err)
	}

	server.BroadcastConnectivity(false)

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeConnectivity {
		t.Errorf("Expected %s, got %s", MessageTypeConnectivity, msg.Type)
	}

	var conn2 ConnectivityData
	if err := json.Unmarshal(msg.Data, &conn2); err != nil {
		t.Fatalf("Failed to unmarshal connectivity data: %v", err)
	}
	if conn2.Online {
		t.Error("Expected offline flag")
	}
}
