// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sampleRequest struct {
	Action string `cbor:"action"`
	Hash   string `cbor:"hash,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"hash": "abc", "action": "torrent-data", "n": 1}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic: %x != %x", first, again)
		}
	}
}

func TestStreamDecodesConsecutiveValues(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	requests := []sampleRequest{
		{Action: "torrent-data", Hash: "00"},
		{Action: "status"},
	}
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range requests {
		var got sampleRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if got != want {
			t.Errorf("value %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestUntypedMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "x"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("top level decoded as %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("nested map decoded as %T, want map[string]any", outer["outer"])
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	data, err := Marshal(sampleRequest{Action: "torrent-data", Hash: "ff"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var raw RawMessage
	if err := Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal raw: %v", err)
	}
	var header struct {
		Action string `cbor:"action"`
	}
	if err := Unmarshal(raw, &header); err != nil {
		t.Fatalf("Unmarshal header: %v", err)
	}
	if header.Action != "torrent-data" {
		t.Errorf("Action = %q, want %q", header.Action, "torrent-data")
	}
}
