package printer

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
)

// fakePrinter runs an in-process TCP listener standing in for a thermal
// printer. The handler decides what to do with each connection.
func fakePrinter(t *testing.T, handler func(conn net.Conn)) (addr string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handler(conn)
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	return tcpAddr.IP.String(), tcpAddr.Port
}

func networkPrinter(ip string, port int) model.PrinterSetting {
	return model.PrinterSetting{
		ID:             uuid.New(),
		Name:           "Front Desk",
		ConnectionType: enum.ConnectionTypeNetwork,
		IPAddress:      ip,
		Port:           port,
		PaperWidth:     80,
	}
}

func testClient() *Client {
	return NewClient(zerolog.Nop())
}

func TestPrint_SuccessAck(t *testing.T) {
	var received strings.Builder
	done := make(chan struct{})
	ip, port := fakePrinter(t, func(conn net.Conn) {
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			received.WriteString(line)
			if err != nil || strings.Contains(received.String(), "\x1dV") {
				break
			}
		}
		conn.Write([]byte("OK\n"))
		close(done)
	})

	c := testClient()
	p := networkPrinter(ip, port)
	p.AutoCut = true
	err := c.Print(context.Background(), p, TagInit+"\nhello\n"+TagCut+"\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fake printer never saw the cut sequence")
	}
	if !strings.Contains(received.String(), "hello") {
		t.Errorf("payload not received: %q", received.String())
	}
	if strings.Contains(received.String(), "[INIT]") {
		t.Error("network payload should be ESC/POS encoded, found raw tag")
	}
}

func TestPrint_PrematureClose(t *testing.T) {
	ip, port := fakePrinter(t, func(conn net.Conn) {
		conn.Close() // hang up without acking
	})

	c := testClient()
	err := c.Print(context.Background(), networkPrinter(ip, port), "hello\n")
	if !errors.Is(err, ErrPrematureClose) {
		t.Fatalf("expected ErrPrematureClose, got: %v", err)
	}
}

func TestPrint_Rejected(t *testing.T) {
	ip, port := fakePrinter(t, func(conn net.Conn) {
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte("ERR paper out\n"))
	})

	c := testClient()
	err := c.Print(context.Background(), networkPrinter(ip, port), "hello\n")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got: %v", err)
	}
}

func TestPrint_AckTimeout(t *testing.T) {
	ip, port := fakePrinter(t, func(conn net.Conn) {
		// Read but never respond.
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				conn.Close()
				return
			}
		}
	})

	c := testClient()
	c.timeout = 100 * time.Millisecond
	err := c.Print(context.Background(), networkPrinter(ip, port), "hello\n")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("timeout errors must mention timing out, got: %v", err)
	}
}

func TestPrint_ConnectFailure(t *testing.T) {
	// Grab a port and close the listener so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	c := testClient()
	c.timeout = 500 * time.Millisecond
	err = c.Print(context.Background(), networkPrinter(addr.IP.String(), addr.Port), "hello\n")
	if err == nil {
		t.Fatal("expected connect error, got nil")
	}
}

func TestPrint_NonNetworkSucceedsWithoutSocket(t *testing.T) {
	c := testClient()
	c.dial = func(network, address string, timeout time.Duration) (net.Conn, error) {
		t.Fatal("non-network printers must not dial")
		return nil, nil
	}

	for _, ct := range []string{enum.ConnectionTypeUSB, enum.ConnectionTypeBluetooth, enum.ConnectionTypeSystem} {
		p := model.PrinterSetting{ID: uuid.New(), Name: "Desk", ConnectionType: ct}
		if err := c.Print(context.Background(), p, "hello\n"); err != nil {
			t.Errorf("%s: unexpected error: %v", ct, err)
		}
	}
}

func TestPrint_MissingAddress(t *testing.T) {
	c := testClient()
	p := model.PrinterSetting{ID: uuid.New(), Name: "Ghost", ConnectionType: enum.ConnectionTypeNetwork}
	if err := c.Print(context.Background(), p, "hello\n"); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("expected ErrNoAddress, got: %v", err)
	}
}

// Two prints to the same printer are serialized; the fake holds the first
// connection open until released and counts concurrent connections.
func TestPrint_SerializedPerPrinter(t *testing.T) {
	var mu struct {
		cur, peak int
	}
	var lock = make(chan struct{}, 1)

	ip, port := fakePrinter(t, func(conn net.Conn) {
		defer conn.Close()
		lock <- struct{}{}
		mu.cur++
		if mu.cur > mu.peak {
			mu.peak = mu.cur
		}
		<-lock
		time.Sleep(20 * time.Millisecond)
		buf := make([]byte, 4096)
		conn.Read(buf)
		lock <- struct{}{}
		mu.cur--
		<-lock
		conn.Write([]byte("OK\n"))
	})

	c := testClient()
	p := networkPrinter(ip, port)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			errs <- c.Print(context.Background(), p, "job\n")
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("print %d: %v", i, err)
		}
	}
	if mu.peak > 1 {
		t.Errorf("expected at most 1 concurrent connection per printer, saw %d", mu.peak)
	}
}
