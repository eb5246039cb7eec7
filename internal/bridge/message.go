package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies a bridge message.
type MessageType string

const (
	// TypeHello is the first message of every connection
	TypeHello MessageType = "hello"
	// TypeScan carries a barcode from a scanner to sessions
	TypeScan MessageType = "scan"
	// TypeVibrate asks the scanner that produced the last scan to vibrate
	TypeVibrate MessageType = "vibrate"
	// TypeAck confirms a scan and reports how many sessions received it
	TypeAck MessageType = "ack"
	// TypeError reports a rejected message
	TypeError MessageType = "error"
)

// Limits applied to incoming messages.
const (
	MaxBarcodeLength = 256
	MaxVibrateMs     = 2000
	maxMessageSize   = 4096
)

// Message is the JSON wire format shared by scanners and sessions.
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Barcode   string      `json:"barcode,omitempty"`
	Ms        int         `json:"ms,omitempty"`
	Session   string      `json:"session,omitempty"`
	Scanner   string      `json:"scanner,omitempty"`
	Delivered int         `json:"delivered,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ErrInvalidMessage wraps every decoding and validation failure.
var ErrInvalidMessage = errors.New("invalid message")

// DecodeMessage parses and validates one message.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) > maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidMessage, len(data), maxMessageSize)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Validate checks the fields required by the message type.
func (m *Message) Validate() error {
	switch m.Type {
	case TypeHello, TypeAck, TypeError:
		return nil
	case TypeScan:
		code := strings.TrimSpace(m.Barcode)
		if code == "" {
			return fmt.Errorf("%w: scan without barcode", ErrInvalidMessage)
		}
		if len(code) > MaxBarcodeLength {
			return fmt.Errorf("%w: barcode longer than %d", ErrInvalidMessage, MaxBarcodeLength)
		}
		return nil
	case TypeVibrate:
		if m.Ms <= 0 {
			return fmt.Errorf("%w: vibrate needs a positive duration", ErrInvalidMessage)
		}
		if m.Ms > MaxVibrateMs {
			m.Ms = MaxVibrateMs
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
}

// Encode returns the JSON form of the message.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
