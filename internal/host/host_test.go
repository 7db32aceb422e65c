package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/linkbridge/internal/channel"
	"github.com/danmuck/linkbridge/internal/protocol"
	"github.com/danmuck/linkbridge/internal/testutil/testlog"
	"github.com/jonboulle/clockwork"
)

const waitFor = 2 * time.Second

// peer is the bridge end of the pipe.
type peer struct {
	t   *testing.T
	end *channel.PipeEnd
}

func (p *peer) send(cmd protocol.Command) {
	p.t.Helper()
	msg, err := protocol.EncodeCommand(cmd)
	if err != nil {
		p.t.Fatalf("encode %s: %v", cmd.CommandName(), err)
	}
	p.sendRaw(msg)
}

func (p *peer) sendRaw(msg channel.Message) {
	p.t.Helper()
	if err := p.end.Send(context.Background(), msg); err != nil {
		p.t.Fatalf("send %s: %v", msg.Name, err)
	}
}

func (p *peer) expect(name string) protocol.Event {
	p.t.Helper()
	select {
	case msg := <-p.end.Inbound():
		if msg.Name != name {
			p.t.Fatalf("expected %s, got %s (%s)", name, msg.Name, msg.Payload)
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

func newAttached(t *testing.T, cfg SimulatedConfig) (*Host, *peer) {
	t.Helper()
	h := New(SimulatedFactory(cfg), WithPort(3000), WithClock(cfg.Clock))
	bridgeEnd, hostEnd := channel.NewPipe(0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.Attach(ctx, hostEnd)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = h.Close()
		_ = bridgeEnd.Close()
	})

	p := &peer{t: t, end: bridgeEnd}
	ready := p.expect(protocol.EventServerReady).(protocol.ServerReady)
	if ready.Port != 3000 {
		t.Fatalf("server-ready port got=%d", ready.Port)
	}
	return h, p
}

func messenger(t *testing.T, h *Host) *SimulatedMessenger {
	t.Helper()
	s, err := h.current()
	if err != nil {
		t.Fatalf("no session: %v", err)
	}
	sm, ok := s.Messenger.(*SimulatedMessenger)
	if !ok {
		t.Fatalf("unexpected messenger %T", s.Messenger)
	}
	return sm
}

func pairAndOpen(t *testing.T, h *Host, p *peer) {
	t.Helper()
	p.send(protocol.StartSession{})
	tok := p.expect(protocol.EventPairingToken).(protocol.PairingToken)
	if tok.Code == "" {
		t.Fatalf("empty pairing token")
	}
	if err := h.ConfirmPairing(); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus); st.Status != protocol.StatusOpen {
		t.Fatalf("expected open, got %+v", st)
	}
}

func TestStartSessionPairsAndReannounces(t *testing.T) {
	testlog.Start(t)
	h, p := newAttached(t, SimulatedConfig{})
	pairAndOpen(t, h, p)

	p.send(protocol.StartSession{})
	if st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus); st.Status != protocol.StatusOpen {
		t.Fatalf("re-announce got %+v", st)
	}
	if err := h.ConfirmPairing(); !errors.Is(err, ErrNotPairing) {
		t.Fatalf("expected ErrNotPairing, got %v", err)
	}
}

func TestCommandsWithoutSessionReplyFailure(t *testing.T) {
	testlog.Start(t)
	h, p := newAttached(t, SimulatedConfig{})

	p.send(protocol.SendMessage{Token: "1.a", Target: "15550100", Text: "hi"})
	sent := p.expect(protocol.EventMessageSent).(protocol.MessageSent)
	if sent.Token != "1.a" || sent.Success || sent.Error == "" {
		t.Fatalf("send reply got %+v", sent.Reply)
	}
	p.send(protocol.GetIdentity{Token: "1.b"})
	id := p.expect(protocol.EventIdentity).(protocol.Identity)
	if id.Token != "1.b" || id.Success {
		t.Fatalf("identity reply got %+v", id.Reply)
	}
	if _, ok := h.Session(); ok {
		t.Fatalf("no session expected")
	}
	if err := h.Drop("x"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSendAndIdentityWhileConnected(t *testing.T) {
	testlog.Start(t)
	h, p := newAttached(t, SimulatedConfig{Identity: "15550199@device"})
	pairAndOpen(t, h, p)

	p.send(protocol.SendMessage{Token: "2.a", Target: "15550100", Text: "hello"})
	if r := p.expect(protocol.EventMessageSent).(protocol.MessageSent); !r.Success || r.Token != "2.a" {
		t.Fatalf("send reply got %+v", r.Reply)
	}
	doc := &protocol.Document{Data: "aGk=", MimeType: "text/plain", Filename: "hi.txt"}
	p.send(protocol.SendMessage{Token: "2.b", Target: "15550100", Document: doc})
	if r := p.expect(protocol.EventMessageSent).(protocol.MessageSent); !r.Success {
		t.Fatalf("document reply got %+v", r.Reply)
	}
	sent := messenger(t, h).Sent()
	if len(sent) != 2 || sent[0].Text != "hello" || sent[1].Document == nil || sent[1].Document.Filename != "hi.txt" {
		t.Fatalf("recorded messages got %+v", sent)
	}

	p.send(protocol.GetIdentity{Token: "2.c"})
	id := p.expect(protocol.EventIdentity).(protocol.Identity)
	if !id.Success || id.Value != "15550199@device" {
		t.Fatalf("identity got %+v", id.Reply)
	}
}

func TestMalformedRequestGetsFailureReply(t *testing.T) {
	testlog.Start(t)
	_, p := newAttached(t, SimulatedConfig{})

	p.sendRaw(channel.Message{Name: protocol.CommandSendMessage, Payload: []byte(`{"token":"3.a","target":"15550100"}`)})
	r := p.expect(protocol.EventMessageSent).(protocol.MessageSent)
	if r.Token != "3.a" || r.Success || r.Error == "" {
		t.Fatalf("reply got %+v", r.Reply)
	}

	p.sendRaw(channel.Message{Name: "reboot"})
	fail := p.expect(protocol.EventSessionError).(protocol.SessionFailure)
	if fail.Message == "" {
		t.Fatalf("expected failure message")
	}
}

func TestLogoutEndsSessionAndNextStartPairsAgain(t *testing.T) {
	testlog.Start(t)
	h, p := newAttached(t, SimulatedConfig{})
	pairAndOpen(t, h, p)
	first, _ := h.Session()

	p.send(protocol.Logout{Token: "4.a"})
	closed := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus)
	if !closed.LoggedOut() {
		t.Fatalf("expected logged out close, got %+v", closed)
	}
	done := p.expect(protocol.EventLogoutComplete).(protocol.LogoutComplete)
	if !done.Success || done.Token != "4.a" {
		t.Fatalf("logout reply got %+v", done.Reply)
	}
	if _, ok := h.Session(); ok {
		t.Fatalf("session should be gone after logout")
	}

	p.send(protocol.StartSession{})
	p.expect(protocol.EventPairingToken)
	second, ok := h.Session()
	if !ok || second.ID == first.ID {
		t.Fatalf("expected a fresh session, first=%s second=%+v", first.ID, second)
	}
}

func TestDropKeepsCredentials(t *testing.T) {
	testlog.Start(t)
	h, p := newAttached(t, SimulatedConfig{})
	pairAndOpen(t, h, p)

	if err := h.Drop("network lost"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus)
	if st.Status != protocol.StatusClosed || st.Reason != "network lost" || st.LoggedOut() {
		t.Fatalf("drop status got %+v", st)
	}

	p.send(protocol.StartSession{})
	if st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus); st.Status != protocol.StatusOpen {
		t.Fatalf("restart after drop should reopen, got %+v", st)
	}
}

func TestPairingTokenRotatesAndAutoPairs(t *testing.T) {
	testlog.Start(t)
	fc := clockwork.NewFakeClock()
	_, p := newAttached(t, SimulatedConfig{Clock: fc, PairingTTL: 20 * time.Second, AutoPairAfter: 30 * time.Second})

	p.send(protocol.StartSession{})
	first := p.expect(protocol.EventPairingToken).(protocol.PairingToken)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if err := fc.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("timers not armed: %v", err)
	}
	fc.Advance(20 * time.Second)
	second := p.expect(protocol.EventPairingToken).(protocol.PairingToken)
	if second.Code == first.Code {
		t.Fatalf("token did not rotate")
	}

	if err := fc.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("rotation timer not rearmed: %v", err)
	}
	fc.Advance(10 * time.Second)
	if st := p.expect(protocol.EventConnectionStatus).(protocol.ConnectionStatus); st.Status != protocol.StatusOpen {
		t.Fatalf("auto pair got %+v", st)
	}
}

func TestAttachReplacesPreviousChannel(t *testing.T) {
	testlog.Start(t)
	h := New(SimulatedFactory(SimulatedConfig{}))
	defer h.Close()

	firstBridge, firstHost := channel.NewPipe(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Attach(ctx, firstHost) }()
	first := &peer{t: t, end: firstBridge}
	first.expect(protocol.EventServerReady)

	secondBridge, secondHost := channel.NewPipe(0)
	go func() { _ = h.Attach(ctx, secondHost) }()
	second := &peer{t: t, end: secondBridge}
	second.expect(protocol.EventServerReady)

	select {
	case <-firstBridge.Done():
	case <-time.After(waitFor):
		t.Fatalf("previous channel should be closed")
	}
	second.send(protocol.StartSession{})
	second.expect(protocol.EventPairingToken)
}
