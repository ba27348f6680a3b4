package wire_test

import (
	"bytes"
	"testing"

	"github.com/richb-hanover/crusader/pkg/wire"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	hello := wire.Hello{Magic: wire.HelloMagic, Protocol: wire.ProtocolVersion}
	if err := wire.WriteFrame(&buf, wire.TagHello, hello); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	f, err := wire.ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if f.Tag != wire.TagHello {
		t.Fatalf("expected TagHello, got %s", f.Tag)
	}
	var got wire.Hello
	if err := f.Decode(&got); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got != hello {
		t.Fatalf("got %+v, want %+v", got, hello)
	}
}

func TestWriteFrameRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	huge := make([]byte, wire.MaxFrameLength+1)
	err := wire.WriteFrame(&buf, wire.TagError, wire.Error{Message: string(huge)})
	if err != wire.ErrFrameTooLarge {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestMultipleFramesOnSameStream(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, wire.TagNewClient, wire.NewClient{}); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := wire.WriteFrame(&buf, wire.TagNewClientResponse, wire.NewClientResponse{ID: 42}); err != nil {
		t.Fatalf("write 2: %v", err)
	}

	f1, err := wire.ReadFrame(&buf)
	if err != nil || f1.Tag != wire.TagNewClient {
		t.Fatalf("read 1 failed: tag=%v err=%v", f1.Tag, err)
	}
	f2, err := wire.ReadFrame(&buf)
	if err != nil || f2.Tag != wire.TagNewClientResponse {
		t.Fatalf("read 2 failed: tag=%v err=%v", f2.Tag, err)
	}
	var resp wire.NewClientResponse
	if err := f2.Decode(&resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.ID != 42 {
		t.Fatalf("got ID %d, want 42", resp.ID)
	}
}
