package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/config"
	"github.com/danmuck/linkbridge/internal/protocol"
	"github.com/danmuck/linkbridge/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T, codec string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultHostConfig()
	cfg.Addr = "127.0.0.1:3100"
	cfg.Codec = codec
	cfg.PairingTTL = 0
	s, err := NewServer("sessiond-test", cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Host().Close() })
	return s
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServerBasicRoutes(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, channel.CodecJSON)
	r := s.HTTPRouter()

	rr := doRequest(t, r, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET / status=%d", rr.Code)
	}
	var greet map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &greet); err != nil {
		t.Fatalf("decode greeting: %v", err)
	}
	if greet["message"] == "" || greet["timestamp"] == "" {
		t.Fatalf("greeting got %+v", greet)
	}

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		if rr := doRequest(t, r, http.MethodGet, path, ""); rr.Code != http.StatusOK {
			t.Fatalf("GET %s status=%d", path, rr.Code)
		}
	}
	if rr := doRequest(t, r, http.MethodGet, "/session", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("GET /session without session status=%d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodPost, "/pairing/confirm", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("confirm without session status=%d", rr.Code)
	}
	if rr := doRequest(t, r, http.MethodPost, "/connection/drop", "{bad"); rr.Code != http.StatusBadRequest {
		t.Fatalf("drop with bad body status=%d", rr.Code)
	}
}

func TestServerRejectsInvalidConfig(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultHostConfig()
	cfg.Codec = "protobuf"
	if _, err := NewServer("bad", cfg); err == nil {
		t.Fatalf("expected invalid codec to be rejected")
	}
}

func TestServerChannelPairingFlow(t *testing.T) {
	testlog.Start(t)
	for _, codecName := range []string{channel.CodecJSON, channel.CodecCBOR} {
		s := newTestServer(t, codecName)
		srv := httptest.NewServer(s.HTTPRouter())
		codec, _ := channel.CodecByName(codecName)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/channel"
		client, err := channel.DialWebsocket(ctx, url, channel.WebsocketOptions{Codec: codec})
		if err != nil {
			cancel()
			srv.Close()
			t.Fatalf("%s dial: %v", codecName, err)
		}
		p := &wsPeer{t: t, tr: client}

		ready := p.expect(protocol.EventServerReady).(protocol.ServerReady)
		if ready.Port != 3100 {
			t.Fatalf("%s server-ready port=%d", codecName, ready.Port)
		}
		p.send(protocol.StartSession{})
		p.expect(protocol.EventPairingToken)

		if rr := doRequest(t, s.HTTPRouter(), http.MethodPost, "/pairing/confirm", ""); rr.Code != http.StatusOK {
			t.Fatalf("%s confirm status=%d body=%s", codecName, rr.Code, rr.Body.String())
		}
		if st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus); st.Status != protocol.StatusOpen {
			t.Fatalf("%s expected open, got %+v", codecName, st)
		}
		if rr := doRequest(t, s.HTTPRouter(), http.MethodPost, "/pairing/confirm", ""); rr.Code != http.StatusConflict {
			t.Fatalf("%s second confirm status=%d", codecName, rr.Code)
		}

		rr := doRequest(t, s.HTTPRouter(), http.MethodGet, "/session", "")
		var info SessionInfo
		if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil || info.ID == "" || info.State != "open" {
			t.Fatalf("%s session got %+v err=%v", codecName, info, err)
		}

		if rr := doRequest(t, s.HTTPRouter(), http.MethodPost, "/connection/drop", `{"reason":"lab unplugged"}`); rr.Code != http.StatusOK {
			t.Fatalf("%s drop status=%d", codecName, rr.Code)
		}
		st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus)
		if st.Status != protocol.StatusClosed || st.Reason != "lab unplugged" {
			t.Fatalf("%s drop status got %+v", codecName, st)
		}

		_ = client.Close()
		cancel()
		srv.Close()
	}
}

func TestCorsConfigAllowsAllOnWildcard(t *testing.T) {
	testlog.Start(t)
	if cfg := corsConfig([]string{"http://localhost:5173", "*"}); !cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 0 {
		t.Fatalf("wildcard config got %+v", cfg)
	}
	if cfg := corsConfig([]string{"http://localhost:5173"}); cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 1 {
		t.Fatalf("explicit config got %+v", cfg)
	}
	if portOf(":3000") != 3000 || portOf("bad") != 0 {
		t.Fatalf("portOf mismatch")
	}
}

type wsPeer struct {
	t  *testing.T
	tr channel.Transport
}

func (p *wsPeer) send(cmd protocol.Command) {
	p.t.Helper()
	msg, err := protocol.EncodeCommand(cmd)
	if err != nil {
		p.t.Fatalf("encode: %v", err)
	}
	if err := p.tr.Send(context.Background(), msg); err != nil {
		p.t.Fatalf("send: %v", err)
	}
}

func (p *wsPeer) expect(name string) protocol.Event {
	p.t.Helper()
	select {
	case msg := <-p.tr.Inbound():
		if msg.Name != name {
			p.t.Fatalf("expected %s, got %s", name, msg.Name)
		}
		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			p.t.Fatalf("decode %s: %v", name, err)
		}
		return ev
	case <-time.After(waitFor):
		p.t.Fatalf("timed out waiting for %s", name)
	}
	return nil
}
