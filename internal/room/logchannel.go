package room

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// The worker forwards its log lines to the hub over a dedicated framed
// channel rather than writing to the process log directly, so hub-side
// logging stays the single sink and a wedged worker cannot interleave
// partial lines. Frames are [header, gob payload]; the link is opened with
// a HANDSHAKE / HANDSHAKE-ACK exchange and torn down with CLOSE /
// CLOSE-ACK so both ends agree the channel drained before it drops.

// LogMethod is the level tag of one forwarded log line.
type LogMethod byte

const (
	LogDebug LogMethod = iota
	LogInfo
	LogWarn
	LogError
	LogFatal
	LogHandleError
	LogHandleFatal
	LogSenderError // fault in the sending side of the channel itself
	LogSenderDebug
)

func (m LogMethod) String() string {
	switch m {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogFatal:
		return "FATAL"
	case LogHandleError:
		return "HANDLE-ERROR"
	case LogHandleFatal:
		return "HANDLE-FATAL"
	case LogSenderError:
		return "SENDER-ERROR"
	case LogSenderDebug:
		return "SENDER-DEBUG"
	}
	return "UNKNOWN"
}

// Control frame codes, outside the LogMethod space.
const (
	frameHandshake    byte = 0xF0
	frameHandshakeAck byte = 0xF1
	frameClose        byte = 0xF2
	frameCloseAck     byte = 0xF3
)

const (
	logProtocolVersion uint16 = 1
	logHeaderSize             = 8 // version(2) + method(1) + reserved(1) + length(4)
	logMaxFrameSize           = 64 * 1024
	logHandshakeWait          = 2 * time.Second
)

var (
	errLogTimeout  = errors.New("log channel: handshake timed out")
	errLogNotReady = errors.New("log channel: not established")
)

func writeLogFrame(w io.Writer, method byte, payload any) error {
	var body []byte
	if payload != nil {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
			return fmt.Errorf("log frame encode: %w", err)
		}
		body = buf.Bytes()
	}
	if len(body) > logMaxFrameSize {
		return fmt.Errorf("log frame too large: %d", len(body))
	}

	header := make([]byte, logHeaderSize)
	binary.LittleEndian.PutUint16(header[0:2], logProtocolVersion)
	header[2] = method
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("log frame header: %w", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return fmt.Errorf("log frame body: %w", err)
		}
	}
	return nil
}

func readLogFrame(r io.Reader) (byte, []byte, error) {
	header := make([]byte, logHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	if v := binary.LittleEndian.Uint16(header[0:2]); v != logProtocolVersion {
		return 0, nil, fmt.Errorf("log frame version %d, want %d", v, logProtocolVersion)
	}
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > logMaxFrameSize {
		return 0, nil, fmt.Errorf("log frame too large: %d", length)
	}
	var body []byte
	if length > 0 {
		body = make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, nil, err
		}
	}
	return header[2], body, nil
}

// LogSender is the worker's end of the log channel. Single-goroutine use.
type LogSender struct {
	conn        net.Conn
	established bool
}

// NewLogSender wraps the worker's side of the pipe.
func NewLogSender(conn net.Conn) *LogSender {
	return &LogSender{conn: conn}
}

// Handshake opens the channel: send HANDSHAKE, wait for HANDSHAKE-ACK.
func (s *LogSender) Handshake(timeout time.Duration) error {
	if err := writeLogFrame(s.conn, frameHandshake, nil); err != nil {
		return err
	}
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	defer s.conn.SetReadDeadline(time.Time{})

	method, _, err := readLogFrame(s.conn)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return errLogTimeout
		}
		return err
	}
	if method != frameHandshakeAck {
		return fmt.Errorf("log channel: unexpected frame 0x%02x during handshake", method)
	}
	s.established = true
	return nil
}

// Log forwards one line. The channel must be established.
func (s *LogSender) Log(method LogMethod, message string) error {
	if !s.established {
		return errLogNotReady
	}
	return writeLogFrame(s.conn, byte(method), message)
}

// Logf is Log with formatting.
func (s *LogSender) Logf(method LogMethod, format string, args ...any) error {
	return s.Log(method, fmt.Sprintf(format, args...))
}

// Close tears the channel down: send CLOSE, wait for CLOSE-ACK, then close
// the pipe. Safe to call on an unestablished sender.
func (s *LogSender) Close(timeout time.Duration) error {
	defer s.conn.Close()
	if !s.established {
		return nil
	}
	s.established = false

	if err := writeLogFrame(s.conn, frameClose, nil); err != nil {
		return err
	}
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	for {
		method, _, err := readLogFrame(s.conn)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return errLogTimeout
			}
			return err
		}
		if method == frameCloseAck {
			return nil
		}
		// Anything else still in flight is drained and dropped.
	}
}

// ServeLogChannel is the hub's end: it acks the handshake, forwards every
// log frame to sink prefixed with the room id, and acks the close. Returns
// when the channel closes; a non-nil error means the link died without the
// CLOSE exchange.
func ServeLogChannel(conn net.Conn, roomID string, sink func(format string, args ...any)) error {
	defer conn.Close()
	for {
		method, body, err := readLogFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("log channel closed without CLOSE exchange")
			}
			return err
		}

		switch method {
		case frameHandshake:
			if err := writeLogFrame(conn, frameHandshakeAck, nil); err != nil {
				return err
			}
		case frameClose:
			writeLogFrame(conn, frameCloseAck, nil)
			return nil
		default:
			var message string
			if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&message); err != nil {
				sink("[%s] bad log frame: %v", roomID, err)
				continue
			}
			sink("[%s] %s %s", roomID, LogMethod(method), message)
		}
	}
}
