package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// startMockDaemon creates a Unix socket that accepts one connection,
// reads a command, and writes back a canned response.
func startMockDaemon(t *testing.T, response Response) (string, func()) {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read one line (the command)
		buf := make([]byte, 4096)
		if _, err := conn.Read(buf); err != nil {
			return
		}

		data, _ := json.Marshal(response)
		data = append(data, '\n')
		conn.Write(data)
	}()

	return sockPath, func() {
		ln.Close()
		os.Remove(sockPath)
	}
}

func TestClientSendCommand(t *testing.T) {
	resp := Response{
		OK:        true,
		SessionID: "sess-1",
		Recording: BoolPtr(true),
	}

	sockPath, cleanup := startMockDaemon(t, resp)
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	got, err := client.SendCommand(Command{Cmd: CmdStart})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if !got.OK {
		t.Error("ok = false, want true")
	}
	if got.SessionID != "sess-1" {
		t.Errorf("sessionId = %q, want %q", got.SessionID, "sess-1")
	}
}

func TestClientDoRejected(t *testing.T) {
	sockPath, cleanup := startMockDaemon(t, Response{OK: false, Error: "microphone permission denied"})
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	_, err = client.Do(Command{Cmd: CmdStart})
	if err == nil {
		t.Fatal("expected error for rejected command")
	}
	if !strings.Contains(err.Error(), "microphone permission denied") {
		t.Errorf("err = %v, want daemon message", err)
	}
}

func TestClientConnectFailure(t *testing.T) {
	_, err := Connect("/nonexistent/path/recognizer.sock")
	if err == nil {
		t.Error("expected error connecting to nonexistent socket")
	}
	if Reachable(context.Background(), "/nonexistent/path/recognizer.sock") {
		t.Error("Reachable = true for nonexistent socket")
	}
}

// startMockEventStream creates a daemon that sends a subscribe response
// then streams events and hangs up.
func startMockEventStream(t *testing.T, events []Event) (string, func()) {
	t.Helper()

	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		// Read subscribe command
		buf := make([]byte, 4096)
		conn.Read(buf)

		resp, _ := json.Marshal(Response{OK: true})
		conn.Write(append(resp, '\n'))

		for _, ev := range events {
			data, _ := json.Marshal(ev)
			conn.Write(append(data, '\n'))
		}
	}()

	return sockPath, func() {
		ln.Close()
		os.Remove(sockPath)
	}
}

func TestClientReadEvents(t *testing.T) {
	seq := 1
	events := []Event{
		{Event: EventPartial, Text: "hel"},
		{Event: EventSegment, Text: "hello", SequenceNumber: &seq},
	}

	sockPath, cleanup := startMockEventStream(t, events)
	defer cleanup()

	client, err := Connect(sockPath)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := client.Do(Command{Cmd: CmdSubscribe}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev1, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 1: %v", err)
	}
	if ev1.Event != EventPartial || ev1.Text != "hel" {
		t.Errorf("event1 = %+v", ev1)
	}

	ev2, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("read event 2: %v", err)
	}
	if ev2.Event != EventSegment || ev2.SequenceNumber == nil || *ev2.SequenceNumber != 1 {
		t.Errorf("event2 = %+v", ev2)
	}

	// The mock hangs up after the last event.
	if _, err := client.ReadEvent(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("read after hangup err = %v, want ErrConnectionClosed", err)
	}
}
