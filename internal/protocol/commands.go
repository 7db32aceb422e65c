package protocol

import (
	"encoding/base64"
	"strings"
)

// Command is one outbound payload tagged by its name.
type Command interface {
	CommandName() string
	Validate() error
}

// Request is a Command that expects a reply correlated by token.
type Request interface {
	Command
	RequestToken() string
	WithToken(token string) Request
}

type StartSession struct{}

func (StartSession) CommandName() string { return CommandStartSession }
func (StartSession) Validate() error     { return nil }

// Document is an optional attachment; Data is standard base64.
type Document struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

func (d Document) Validate() error {
	if strings.TrimSpace(d.Data) == "" {
		return invalid("document missing data")
	}
	if _, err := base64.StdEncoding.DecodeString(d.Data); err != nil {
		return invalid("document data is not base64: %v", err)
	}
	if strings.TrimSpace(d.MimeType) == "" {
		return invalid("document missing mimeType")
	}
	if strings.TrimSpace(d.Filename) == "" {
		return invalid("document missing filename")
	}
	return nil
}

type SendMessage struct {
	Token    string    `json:"token"`
	Target   string    `json:"target"`
	Text     string    `json:"text,omitempty"`
	Document *Document `json:"document,omitempty"`
}

func (SendMessage) CommandName() string    { return CommandSendMessage }
func (m SendMessage) RequestToken() string { return m.Token }
func (m SendMessage) WithToken(token string) Request {
	m.Token = token
	return m
}

func (m SendMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return invalid("send-message missing token")
	}
	if strings.TrimSpace(m.Target) == "" {
		return invalid("send-message missing target")
	}
	if m.Text == "" && m.Document == nil {
		return invalid("send-message needs text or document")
	}
	if m.Document != nil {
		return m.Document.Validate()
	}
	return nil
}

type Logout struct {
	Token string `json:"token"`
}

func (Logout) CommandName() string    { return CommandLogout }
func (l Logout) RequestToken() string { return l.Token }
func (l Logout) WithToken(token string) Request {
	l.Token = token
	return l
}

func (l Logout) Validate() error {
	if strings.TrimSpace(l.Token) == "" {
		return invalid("logout missing token")
	}
	return nil
}

type GetIdentity struct {
	Token string `json:"token"`
}

func (GetIdentity) CommandName() string    { return CommandGetIdentity }
func (g GetIdentity) RequestToken() string { return g.Token }
func (g GetIdentity) WithToken(token string) Request {
	g.Token = token
	return g
}

func (g GetIdentity) Validate() error {
	if strings.TrimSpace(g.Token) == "" {
		return invalid("get-identity missing token")
	}
	return nil
}
