// Package tcproto implements the station side of the network-server
// message protocol in its two encodings, the JSON text protocol and the
// compact protobuf binary protocol. The binary envelope is a TcMessage
// carrying a message-type discriminant and exactly one payload variant,
// see proto/tc.proto for the schema.
package tcproto

import (
	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"

	"github.com/lorawan-station/stationd/internal/frame"
	"github.com/lorawan-station/stationd/internal/models"
)

// Decode and encode errors.
var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrKindMismatch   = errors.New("message type and payload variant do not match")
	ErrBufferTooSmall = errors.New("buffer too small")
	ErrInvalidFrame   = errors.New("invalid radio frame")
)

// Kind discriminates the message types of the protocol envelope.
type Kind int

// Message kinds. Unknown is returned for discriminants this version does
// not know, so new message types degrade gracefully.
const (
	Unknown Kind = iota
	Updf
	Jreq
	Propdf
	Dntxed
	Timesync
	Dnmsg
	Dnsched
	TimesyncResp
	Runcmd
	Rmtsh
)

var kindNames = [...]string{
	"unknown",
	"updf",
	"jreq",
	"propdf",
	"dntxed",
	"timesync",
	"dnmsg",
	"dnsched",
	"timesync_resp",
	"runcmd",
	"rmtsh",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Message is a decoded protocol envelope. Only the payload of the
// decoded Kind is set. All slices are copies owned by the message.
type Message struct {
	Kind Kind

	// Uplink payloads (updf, jreq, propdf).
	Frame   *frame.Frame
	UpInfo  models.RadioMetadata
	RefTime float64

	Dntxed   *TxConfirmation
	Timesync *TimesyncRecord
	Dnmsg    *DownlinkMessage
	Dnsched  []DownlinkMessage
	Runcmd   *RunCommand
	Rmtsh    *RemoteShell
}

// DownlinkMessage instructs the station to transmit a frame.
type DownlinkMessage struct {
	DevEUI   lorawan.EUI64
	DC       int
	DIID     int64
	PDU      []byte
	RxDelay  int
	RX1DR    int
	RX1Freq  uint32
	RX2DR    int
	RX2Freq  uint32
	Priority int
	XTime    int64
	RCtx     int64
	GPSTime  int64
	DR       int
	Freq     uint32
	MuxTime  float64
}

// TxConfirmation reports a transmitted downlink back to the network
// server.
type TxConfirmation struct {
	DIID    int64
	DevEUI  lorawan.EUI64
	RCtx    int64
	XTime   int64
	TxTime  float64
	GPSTime int64
}

// TimesyncRecord carries one half of a time synchronisation exchange.
// A request holds only TxTime, the response adds the server clock.
type TimesyncRecord struct {
	TxTime  float64
	GPSTime int64
	XTime   int64
}

// RunCommand asks the station to execute a host command.
type RunCommand struct {
	Command   string
	Arguments []string
}

// RemoteShell controls a remote shell session on the station host.
type RemoteShell struct {
	User  string
	Term  string
	Start bool
	Stop  bool
	Data  []byte
}
