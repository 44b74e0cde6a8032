package sclink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/goburrow/serial"
)

// Default transport settings.
const (
	// DefaultPort is the controller's TCP port.
	DefaultPort = 9950

	// defaultSerialTimeout bounds a single serial read so the reader can
	// notice a closed session.
	defaultSerialTimeout = time.Second
)

// Conn is an established byte stream to the controller.
type Conn interface {
	io.ReadWriteCloser
}

// writeDeadliner is implemented by connections that support write deadlines.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Dialer opens a connection to the controller.
// Implementations must honour ctx for the duration of the dial.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)

	// String describes the endpoint for logs.
	String() string
}

// TCPDialer reaches the controller over its Ethernet interface.
type TCPDialer struct {
	// Address is "host:port".
	Address string
}

// Ensure the dialers implement Dialer.
var (
	_ Dialer = TCPDialer{}
	_ Dialer = SerialDialer{}
)

// Dial connects over TCP.
func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		return nil, fmt.Errorf("dial tcp://%s: %w", d.Address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(true) //nolint:errcheck // best-effort, link still works without keepalive
	}
	return conn, nil
}

func (d TCPDialer) String() string {
	return "tcp://" + d.Address
}

// SerialDialer reaches the controller through an RS-485 adaptor.
type SerialDialer struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int

	// Parity is "N", "E" or "O".
	Parity string
}

// Dial opens the serial port. The port is opened synchronously; ctx is only
// checked before opening.
func (d SerialDialer) Dial(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open serial %s: %w", d.Device, err)
	}
	port, err := serial.Open(&serial.Config{
		Address:  d.Device,
		BaudRate: d.BaudRate,
		DataBits: d.DataBits,
		StopBits: d.StopBits,
		Parity:   d.Parity,
		Timeout:  defaultSerialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", d.Device, err)
	}
	return port, nil
}

func (d SerialDialer) String() string {
	return "serial://" + d.Device
}

// isTimeout reports whether err is a read timeout that leaves the stream usable.
func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
