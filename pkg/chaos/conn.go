package chaos

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotHijackable is returned when the ResponseWriter cannot hand over its
// connection, as with HTTP/2 or httptest.ResponseRecorder.
var ErrNotHijackable = errors.New("chaos: connection cannot be hijacked")

func hijack(w http.ResponseWriter) (net.Conn, error) {
	conn, _, err := http.NewResponseController(w).Hijack()
	if err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return nil, ErrNotHijackable
		}
		return nil, fmt.Errorf("hijack: %w", err)
	}
	return conn, nil
}

// Reset closes the connection behind w without sending anything. On TCP the
// close is abortive, so the client sees a reset rather than an orderly EOF.
func Reset(w http.ResponseWriter) error {
	conn, err := hijack(w)
	if err != nil {
		return err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	return conn.Close()
}

// WriteRaw writes data to the connection behind w verbatim, bypassing HTTP
// framing, and closes the connection.
func WriteRaw(w http.ResponseWriter, data []byte) error {
	conn, err := hijack(w)
	if err != nil {
		return err
	}
	_, werr := conn.Write(data)
	cerr := conn.Close()
	if werr != nil {
		return fmt.Errorf("write raw response: %w", werr)
	}
	return cerr
}
