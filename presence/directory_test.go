package presence

import (
	"context"
	"testing"
	"time"

	"iot-proto/session"
)

type fakeStream struct{ addr string }

func (s *fakeStream) Write(p []byte) (int, error) { return len(p), nil }
func (s *fakeStream) Close() error                { return nil }
func (s *fakeStream) RemoteAddr() string          { return s.addr }

func TestAnnounceAndList(t *testing.T) {
	dir, err := NewEtcdDirectory([]string{"localhost:2379"}, 5)
	if err != nil {
		t.Fatal(err)
	}

	conn := session.New(&fakeStream{addr: "127.0.0.1:9"}, session.DefaultConfig())
	if err := dir.Announce("device-a", conn); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	list, err := dir.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, d := range list {
		if d.DeviceID == "device-a" {
			found = true
			if d.RemoteAddr != "127.0.0.1:9" {
				t.Fatalf("got remote addr %q, want %q", d.RemoteAddr, "127.0.0.1:9")
			}
		}
	}
	if !found {
		t.Fatal("expected device-a in the announced list")
	}

	if err := dir.Withdraw("device-a"); err != nil {
		t.Fatal(err)
	}
}

func TestAnnounceGeneratesIDWhenEmpty(t *testing.T) {
	dir, err := NewEtcdDirectory([]string{"localhost:2379"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	conn := session.New(&fakeStream{addr: "127.0.0.1:10"}, session.DefaultConfig())
	if err := dir.Announce("", conn); err != nil {
		t.Fatal(err)
	}
}
