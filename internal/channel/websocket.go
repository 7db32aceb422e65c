package channel

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultInboundDepth = 64
	maxMessageBytes     = 8 << 20
)

// WebsocketOptions tunes a websocket transport.
type WebsocketOptions struct {
	Codec        Codec
	WriteTimeout time.Duration
	InboundDepth int
	Header       http.Header
	// TLSConfig is used when dialing wss:// URLs.
	TLSConfig *tls.Config
}

func (o WebsocketOptions) withDefaults() WebsocketOptions {
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.InboundDepth <= 0 {
		o.InboundDepth = defaultInboundDepth
	}
	return o
}

// WebsocketTransport carries Messages as websocket frames, one message per frame.
type WebsocketTransport struct {
	conn    *websocket.Conn
	opts    WebsocketOptions
	writeMu sync.Mutex
	inbound chan Message
	done    chan struct{}

	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

var _ Transport = (*WebsocketTransport)(nil)

// DialWebsocket connects to a session host channel endpoint.
func DialWebsocket(ctx context.Context, url string, opts WebsocketOptions) (*WebsocketTransport, error) {
	opts = opts.withDefaults()
	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = opts.TLSConfig
	conn, _, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, err
	}
	return newWebsocketTransport(conn, opts), nil
}

// ClientTLS trusts the PEM certificates in caFile in addition to the system pool.
func ClientTLS(caFile string) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("ca file %s has no certificates", caFile)
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AcceptWebsocket upgrades an HTTP request into a transport.
func AcceptWebsocket(w http.ResponseWriter, r *http.Request, opts WebsocketOptions) (*WebsocketTransport, error) {
	opts = opts.withDefaults()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newWebsocketTransport(conn, opts), nil
}

func newWebsocketTransport(conn *websocket.Conn, opts WebsocketOptions) *WebsocketTransport {
	conn.SetReadLimit(maxMessageBytes)
	t := &WebsocketTransport{
		conn:    conn,
		opts:    opts,
		inbound: make(chan Message, opts.InboundDepth),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *WebsocketTransport) Send(ctx context.Context, msg Message) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := t.opts.Codec.Marshal(msg)
	if err != nil {
		return err
	}
	frameType := websocket.TextMessage
	if t.opts.Codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	deadline := time.Now().Add(t.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	if err := t.conn.WriteMessage(frameType, data); err != nil {
		t.fail(err)
		return err
	}
	return nil
}

func (t *WebsocketTransport) Inbound() <-chan Message { return t.inbound }

func (t *WebsocketTransport) Done() <-chan struct{} { return t.done }

func (t *WebsocketTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

func (t *WebsocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.writeMu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		close(t.done)
		_ = t.conn.Close()
	})
	return nil
}

func (t *WebsocketTransport) fail(err error) {
	t.errMu.Lock()
	if t.err == nil && !isNormalClose(err) {
		t.err = err
	}
	t.errMu.Unlock()
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.Close()
	})
}

func (t *WebsocketTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.done:
			default:
				t.fail(err)
			}
			return
		}
		msg, err := t.opts.Codec.Unmarshal(data)
		if err != nil {
			// The receiver turns a nameless message into a session error.
			log.Warn().Err(err).Str("codec", t.opts.Codec.Name()).Msg("channel.websocket malformed envelope")
			msg = Message{Payload: append([]byte(nil), data...)}
		}
		select {
		case t.inbound <- msg:
		case <-t.done:
			return
		}
	}
}

func isNormalClose(err error) bool {
	if err == nil {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, ErrClosed)
}
