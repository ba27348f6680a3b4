package udpping_test

import (
	"testing"

	"github.com/richb-hanover/crusader/pkg/udpping"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	p := udpping.Packet{Seq: 12345, ClientSendUs: -1500, ServerRecvUs: 9000}
	buf := p.Marshal()
	if len(buf) != udpping.Size {
		t.Fatalf("expected %d bytes, got %d", udpping.Size, len(buf))
	}
	got, err := udpping.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got != p {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	_, err := udpping.Unmarshal(make([]byte, 23))
	if err == nil {
		t.Fatalf("expected error for short buffer")
	}
}
