package daemon

import (
	"encoding/json"
	"testing"
)

func TestCommandOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(Command{Cmd: CmdStop})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}

	for _, key := range []string{"locale", "device", "events"} {
		if _, ok := raw[key]; ok {
			t.Errorf("stop command should omit %s", key)
		}
	}
	if raw["cmd"] != "stop" {
		t.Errorf("cmd = %v, want stop", raw["cmd"])
	}
}

func TestResponseError(t *testing.T) {
	j := `{"ok":false,"error":"Microphone permission denied"}`

	var resp Response
	if err := json.Unmarshal([]byte(j), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.OK {
		t.Error("ok = true, want false")
	}
	if resp.Error != "Microphone permission denied" {
		t.Errorf("error = %q, want %q", resp.Error, "Microphone permission denied")
	}
}

func TestEventSegment(t *testing.T) {
	j := `{"event":"segment","text":"Hello there","sessionId":"sess-1","sequenceNumber":5}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Event != EventSegment {
		t.Errorf("event = %q, want %q", ev.Event, EventSegment)
	}
	if ev.SequenceNumber == nil || *ev.SequenceNumber != 5 {
		t.Errorf("sequenceNumber = %v, want 5", ev.SequenceNumber)
	}
	if ev.SessionID != "sess-1" {
		t.Errorf("sessionId = %q, want %q", ev.SessionID, "sess-1")
	}
}

func TestEventError(t *testing.T) {
	j := `{"event":"error","message":"Speech recognition failed","transient":true}`

	var ev Event
	if err := json.Unmarshal([]byte(j), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if ev.Message != "Speech recognition failed" {
		t.Errorf("message = %q", ev.Message)
	}
	if ev.Transient == nil || !*ev.Transient {
		t.Errorf("transient = %v, want true", ev.Transient)
	}
}
