package tcproto

import (
	"github.com/lorawan-station/stationd/internal/frame"
	"github.com/lorawan-station/stationd/internal/models"
)

// Format selects the wire encoding of the network-server link.
type Format int

const (
	// FormatText is the JSON text protocol, the default.
	FormatText Format = iota

	// FormatBinary is the compact protobuf protocol.
	FormatBinary
)

// ParseFormat maps the configured protocol format string to a Format.
// The literal "protobuf" selects the binary protocol, any other value
// including the empty string falls back to text.
func ParseFormat(s string) Format {
	if s == "protobuf" {
		return FormatBinary
	}
	return FormatText
}

func (f Format) String() string {
	if f == FormatBinary {
		return "protobuf"
	}
	return "json"
}

// Codec converts between classified radio frames and the wire encoding
// of the network-server link. Implementations are stateless and safe
// for concurrent use.
type Codec interface {
	// MarshalUplink renders a received frame for the network server.
	MarshalUplink(f *frame.Frame, meta models.RadioMetadata, refTime float64) ([]byte, error)

	// MarshalTxConfirmation renders a downlink transmission confirmation.
	MarshalTxConfirmation(txc TxConfirmation) ([]byte, error)

	// MarshalTimesync renders a time synchronisation request or response.
	MarshalTimesync(ts TimesyncRecord, response bool) ([]byte, error)

	// UnmarshalDownlink parses a message received from the network server.
	UnmarshalDownlink(data []byte) (*Message, error)
}

// NewCodec returns the Codec for the given format. With pduOnly set the
// binary codec encodes uplink data frames as raw PDUs without parsed
// fields.
func NewCodec(f Format, pduOnly bool) Codec {
	if f == FormatBinary {
		return &binaryCodec{pduOnly: pduOnly}
	}
	return &textCodec{}
}

type binaryCodec struct {
	pduOnly bool
}

func (c *binaryCodec) MarshalUplink(f *frame.Frame, meta models.RadioMetadata, refTime float64) ([]byte, error) {
	if c.pduOnly && f.Kind == frame.Updf {
		return AppendUpdfPDUOnly(nil, f.PDU, meta, refTime), nil
	}
	return AppendUplink(nil, f, meta, refTime), nil
}

func (c *binaryCodec) MarshalTxConfirmation(txc TxConfirmation) ([]byte, error) {
	return AppendTxConfirmation(nil, txc), nil
}

func (c *binaryCodec) MarshalTimesync(ts TimesyncRecord, response bool) ([]byte, error) {
	return AppendTimesync(nil, ts, response), nil
}

func (c *binaryCodec) UnmarshalDownlink(data []byte) (*Message, error) {
	return Decode(data)
}
