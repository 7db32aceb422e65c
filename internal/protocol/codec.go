package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/danmuck/linkbridge/internal/channel"
)

// EncodeCommand validates cmd and wraps it in a channel message.
func EncodeCommand(cmd Command) (channel.Message, error) {
	if cmd == nil {
		return channel.Message{}, invalid("nil command")
	}
	if err := cmd.Validate(); err != nil {
		return channel.Message{}, err
	}
	return wrap(cmd.CommandName(), cmd)
}

// EncodeEvent validates ev and wraps it in a channel message.
func EncodeEvent(ev Event) (channel.Message, error) {
	if ev == nil {
		return channel.Message{}, invalid("nil event")
	}
	if err := ev.Validate(); err != nil {
		return channel.Message{}, err
	}
	return wrap(ev.EventName(), ev)
}

func wrap(name string, v any) (channel.Message, error) {
	// start-session has no fields; keep its payload empty on the wire.
	if _, ok := v.(StartSession); ok {
		return channel.Message{Name: name}, nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return channel.Message{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return channel.Message{Name: name, Payload: payload}, nil
}

// DecodeEvent maps an inbound message onto the closed event set.
func DecodeEvent(msg channel.Message) (Event, error) {
	var ev Event
	switch msg.Name {
	case EventServerReady:
		var v ServerReady
		if err := unmarshal(msg, &v, true); err != nil {
			return nil, err
		}
		ev = v
	case EventPairingToken:
		var v PairingToken
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		ev = v
	case EventConnectionStatus:
		var v ConnectionStatus
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		ev = v
	case EventMessageSent:
		var v MessageSent
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		ev = v
	case EventLogoutComplete:
		var v LogoutComplete
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		ev = v
	case EventIdentity:
		var v Identity
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		ev = v
	case EventSessionError:
		var v SessionFailure
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		ev = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Name)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodeCommand maps an inbound message onto the command set. Used by hosts.
func DecodeCommand(msg channel.Message) (Command, error) {
	var cmd Command
	switch msg.Name {
	case CommandStartSession:
		cmd = StartSession{}
	case CommandSendMessage:
		var v SendMessage
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		cmd = v
	case CommandLogout:
		var v Logout
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		cmd = v
	case CommandGetIdentity:
		var v GetIdentity
		if err := unmarshal(msg, &v, false); err != nil {
			return nil, err
		}
		cmd = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Name)
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func unmarshal(msg channel.Message, v any, allowEmpty bool) error {
	if len(msg.Payload) == 0 {
		if allowEmpty {
			return nil
		}
		return invalid("%s has empty payload", msg.Name)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return invalid("%s: %v", msg.Name, err)
	}
	return nil
}

// RequestTokenOf returns the correlation token of a command, or "".
func RequestTokenOf(cmd Command) string {
	if r, ok := cmd.(Request); ok {
		return r.RequestToken()
	}
	return ""
}
