package printer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tablemaster-pos/engine/internal/enum"
	"github.com/tablemaster-pos/engine/internal/model"
)

// Errors returned by the printer client.
var (
	ErrTimeout        = errors.New("printer connection timed out")
	ErrPrematureClose = errors.New("printer closed connection before acknowledgment")
	ErrRejected       = errors.New("printer rejected the document")
	ErrNoAddress      = errors.New("printer has no network address configured")
)

// ackOK is the single-line acknowledgment the printer sends back after a
// document is accepted. Anything else before the deadline is a rejection;
// EOF before it is a premature close.
const ackOK = "OK"

// DefaultTimeout bounds every print attempt end to end. There is no
// cancellation for an in-flight print; the deadline is the only bound.
const DefaultTimeout = 5 * time.Second

// Dialer matches net.DialTimeout, swappable in tests.
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// Client ships an encoded document to a networked thermal printer. A print
// attempt moves Idle -> Connecting -> Sending -> Closing and ends in exactly
// one of Success or Failed; the socket is closed on every terminal path.
//
// At most one job is in flight per printer identity; independent printers
// print concurrently.
type Client struct {
	timeout time.Duration
	dial    Dialer
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewClient(log zerolog.Logger) *Client {
	return &Client{
		timeout: DefaultTimeout,
		dial:    net.DialTimeout,
		log:     log,
		locks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// Print encodes and transmits doc to the printer. Non-network connection
// types never open a socket: the logical document is handed to the OS print
// dialog by the caller, so the operation reports success immediately.
func (c *Client) Print(ctx context.Context, p model.PrinterSetting, doc string) error {
	if p.ConnectionType != enum.ConnectionTypeNetwork {
		c.log.Debug().Str("printer", p.Name).Str("connection", p.ConnectionType).
			Msg("non-network printer, deferring to OS dialog")
		return nil
	}
	if p.IPAddress == "" {
		return fmt.Errorf("%w: %s", ErrNoAddress, p.Name)
	}

	lock := c.printerLock(p.ID)
	lock.Lock()
	defer lock.Unlock()

	payload := EncoderFor(p).Encode(doc, p)
	addr := net.JoinHostPort(p.IPAddress, fmt.Sprintf("%d", p.Port))
	log := c.log.With().Str("printer", p.Name).Str("addr", addr).Logger()

	// Connecting
	log.Debug().Msg("connecting")
	conn, err := c.dial("tcp", addr, c.timeout)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: connect to %s", ErrTimeout, addr)
		}
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	// The socket is destroyed on every terminal path, success included.
	defer conn.Close()

	// One absolute deadline covers write and ack.
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	// Sending
	log.Debug().Int("bytes", len(payload)).Msg("sending")
	if _, err := conn.Write(payload); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: write to %s", ErrTimeout, addr)
		}
		return fmt.Errorf("write %s: %w", addr, err)
	}

	// Closing: wait for the ack line before tearing down.
	line, err := bufio.NewReader(conn).ReadString('\n')
	ack := strings.TrimSpace(line)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: no response from %s", ErrTimeout, addr)
		}
		if ack == ackOK {
			// Ack arrived without a trailing newline before EOF; accept it.
			log.Debug().Msg("print acknowledged")
			return nil
		}
		return fmt.Errorf("%w (%s)", ErrPrematureClose, addr)
	}
	if ack != ackOK {
		return fmt.Errorf("%w: got %q", ErrRejected, ack)
	}

	log.Debug().Msg("print acknowledged")
	return nil
}

func (c *Client) printerLock(id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
