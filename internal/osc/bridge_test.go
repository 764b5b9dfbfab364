package osc

import (
	"net"
	"sync"
	"testing"
	"time"
)

func TestNullBridgeRecordsSends(t *testing.T) {
	b := NewNull()
	if err := b.Send(NewMessage("/live/clip/fire", int32(3), int32(0))); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := b.Send(NewMessage("/live/song/stop_playing")); err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := b.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sent))
	}
	if sent[0].Address != "/live/clip/fire" {
		t.Errorf("first address = %q", sent[0].Address)
	}

	b.Reset()
	if len(b.Sent()) != 0 {
		t.Error("reset left messages behind")
	}
}

func TestDispatcherHandleAndOnce(t *testing.T) {
	b := NewNull()

	var mu sync.Mutex
	persistent, once := 0, 0
	b.Handle("/live/song/get/beat", func(m Message) {
		mu.Lock()
		persistent++
		mu.Unlock()
	})
	b.HandleOnce("/clock/ready", func(m Message) {
		mu.Lock()
		once++
		mu.Unlock()
	})

	b.Inject(NewMessage("/live/song/get/beat", int32(1)))
	b.Inject(NewMessage("/live/song/get/beat", int32(2)))
	b.Inject(NewMessage("/clock/ready"))
	b.Inject(NewMessage("/clock/ready"))
	b.Inject(NewMessage("/unrelated"))

	mu.Lock()
	defer mu.Unlock()
	if persistent != 2 {
		t.Errorf("persistent handler fired %d times, want 2", persistent)
	}
	if once != 1 {
		t.Errorf("once handler fired %d times, want 1", once)
	}
}

func TestUDPBridgeSendsDatagrams(t *testing.T) {
	// A local listener stands in for the DAW.
	daw, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer daw.Close()

	b, err := DialUDP(UDPConfig{
		Host:     "127.0.0.1",
		SendPort: daw.LocalAddr().(*net.UDPAddr).Port,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if err := b.Send(NewMessage("/live/track/set/mute", int32(2), int32(1))); err != nil {
		t.Fatalf("send: %v", err)
	}

	daw.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := daw.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	m, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Address != "/live/track/set/mute" {
		t.Errorf("address = %q", m.Address)
	}
	if track, ok := m.Int(0); !ok || track != 2 {
		t.Errorf("track arg = %v", m.Args)
	}
}

func TestUDPBridgeReceivesAndDispatches(t *testing.T) {
	recvConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	recvPort := recvConn.LocalAddr().(*net.UDPAddr).Port
	recvConn.Close()

	b, err := DialUDP(UDPConfig{
		Host:     "127.0.0.1",
		SendPort: 19_999, // nothing listens; the send side is unused here
		RecvPort: recvPort,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	got := make(chan Message, 1)
	b.Handle("/live/song/get/beat", func(m Message) { got <- m })

	sender, err := net.Dial("udp", b.recvConn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	data, err := Encode(NewMessage("/live/song/get/beat", int32(33)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sender.Write(data); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-got:
		if beat, ok := m.Int(0); !ok || beat != 33 {
			t.Errorf("beat = %v, want 33", m.Args)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("incoming datagram never dispatched")
	}
}
