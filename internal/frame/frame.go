// Package frame classifies raw LoRaWAN PHY payloads, applies the station
// admission filters and renders the canonical JSON form used by the text
// protocol.
package frame

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
)

// Decode errors.
var (
	ErrTooShort        = errors.New("frame: too short")
	ErrBadMajor        = errors.New("frame: unsupported major version")
	ErrMalformedLength = errors.New("frame: malformed length")
	ErrFilteredJoinEUI = errors.New("frame: joineui filtered")
	ErrFilteredNetID   = errors.New("frame: netid filtered")
	ErrBadRejoinType   = errors.New("frame: unknown rejoin type")
)

// Kind identifies the frame class of a LoRaWAN PHY payload.
type Kind int

// Frame kinds.
const (
	Jacc Kind = iota
	Jreq
	Updf
	Dndf
	Propdf
	Rejoin
)

var kindNames = [...]string{"jacc", "jreq", "updf", "dndf", "propdf", "rejoin"}

// String implements fmt.Stringer. The value doubles as the msgtype
// discriminator of the text protocol.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Frame is a classified LoRaWAN PHY payload. Only the fields of the
// decoded Kind are set. All slices are copies owned by the frame.
type Frame struct {
	Kind Kind

	// MHdr is the MAC header byte.
	MHdr uint8

	// PDU holds a copy of the whole frame.
	PDU []byte

	// Join-request fields.
	JoinEUI  lorawan.EUI64
	DevEUI   lorawan.EUI64
	DevNonce uint16

	// Data-frame fields. DevAddr carries the little-endian address bytes
	// reinterpreted as a signed 32 bit integer, matching the wire render.
	// FPort is -1 when the frame carries no port.
	DevAddr    int32
	FCtrl      uint8
	FCnt       uint16
	FOpts      []byte
	FPort      int
	FRMPayload []byte

	// Rejoin-request fields.
	RJType  uint8
	NetID   uint32
	RJCount uint16

	// MIC holds the little-endian MIC bytes reinterpreted as a signed
	// 32 bit integer.
	MIC int32
}

// Decoder classifies LoRaWAN frames and applies the configured admission
// filters.
type Decoder struct {
	joinEUIRanges [][2]uint64
	netIDMask     [4]uint32
}

// NewDecoder creates a Decoder without any filtering: all join-requests
// are admitted and all NetIDs pass.
func NewDecoder() *Decoder {
	return &Decoder{
		netIDMask: [4]uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff},
	}
}

// SetJoinEUIFilter sets inclusive [begin, end] JoinEUI value ranges. A
// join-request is admitted when its JoinEUI falls in any range. An empty
// set disables the filter.
func (d *Decoder) SetJoinEUIFilter(ranges [][2]uint64) {
	d.joinEUIRanges = ranges
}

// SetNetIDFilter admits only data frames whose DevAddr prefix belongs to
// one of the given NetIDs. An empty set disables the filter.
func (d *Decoder) SetNetIDFilter(netIDs []lorawan.NetID) {
	if len(netIDs) == 0 {
		d.netIDMask = [4]uint32{0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff}
		return
	}

	var mask [4]uint32
	for _, id := range netIDs {
		nwkID := id[2] & 0x7f
		mask[nwkID>>5] |= 1 << (nwkID & 31)
	}
	d.netIDMask = mask
}

// Decode classifies the given PHY payload and applies the admission
// filters. Rejoin-requests bypass all filters. The returned frame owns
// its field slices; the input buffer is never referenced.
func (d *Decoder) Decode(phy []byte) (*Frame, error) {
	if len(phy) == 0 {
		return nil, ErrTooShort
	}

	mhdr := phy[0]
	mtype := lorawan.MType(mhdr >> 5)

	// join-accept and proprietary frames pass through opaque, without any
	// version or structure checks
	if mtype == lorawan.JoinAccept || mtype == lorawan.Proprietary {
		kind := Jacc
		if mtype == lorawan.Proprietary {
			kind = Propdf
		}
		return &Frame{Kind: kind, MHdr: mhdr, PDU: dup(phy)}, nil
	}

	if mhdr&0x1f != 0 {
		return nil, errors.Wrapf(ErrBadMajor, "mhdr %02X", mhdr)
	}

	switch mtype {
	case lorawan.JoinRequest:
		return d.decodeJoinRequest(phy)
	case lorawan.UnconfirmedDataUp, lorawan.ConfirmedDataUp:
		return d.decodeDataFrame(phy, Updf)
	case lorawan.UnconfirmedDataDown, lorawan.ConfirmedDataDown:
		return d.decodeDataFrame(phy, Dndf)
	default:
		return d.decodeRejoinRequest(phy)
	}
}

func (d *Decoder) decodeJoinRequest(phy []byte) (*Frame, error) {
	if len(phy) != 23 {
		return nil, errors.Wrapf(ErrMalformedLength, "jreq length %d", len(phy))
	}

	joinEUI := binary.LittleEndian.Uint64(phy[1:9])
	if !d.admitJoinEUI(joinEUI) {
		return nil, errors.Wrapf(ErrFilteredJoinEUI, "joineui %016X", joinEUI)
	}

	return &Frame{
		Kind:     Jreq,
		MHdr:     phy[0],
		PDU:      dup(phy),
		JoinEUI:  euiFromLE(phy[1:9]),
		DevEUI:   euiFromLE(phy[9:17]),
		DevNonce: binary.LittleEndian.Uint16(phy[17:19]),
		MIC:      int32(binary.LittleEndian.Uint32(phy[19:23])),
	}, nil
}

func (d *Decoder) decodeDataFrame(phy []byte, kind Kind) (*Frame, error) {
	if len(phy) < 12 {
		return nil, errors.Wrapf(ErrMalformedLength, "%s length %d", kind, len(phy))
	}

	foptsLen := int(phy[5] & 0x0f)
	if 8+foptsLen+4 > len(phy) {
		return nil, errors.Wrapf(ErrMalformedLength, "fopts length %d exceeds %s length %d", foptsLen, kind, len(phy))
	}

	if !d.admitDevAddr(phy[4]) {
		return nil, errors.Wrapf(ErrFilteredNetID, "devaddr %08X", binary.LittleEndian.Uint32(phy[1:5]))
	}

	f := &Frame{
		Kind:       kind,
		MHdr:       phy[0],
		PDU:        dup(phy),
		DevAddr:    int32(binary.LittleEndian.Uint32(phy[1:5])),
		FCtrl:      phy[5],
		FCnt:       binary.LittleEndian.Uint16(phy[6:8]),
		FOpts:      dup(phy[8 : 8+foptsLen]),
		FPort:      -1,
		FRMPayload: []byte{},
		MIC:        int32(binary.LittleEndian.Uint32(phy[len(phy)-4:])),
	}

	portOff := 8 + foptsLen
	if portOff < len(phy)-4 {
		f.FPort = int(phy[portOff])
		f.FRMPayload = dup(phy[portOff+1 : len(phy)-4])
	}
	return f, nil
}

func (d *Decoder) decodeRejoinRequest(phy []byte) (*Frame, error) {
	n := len(phy)
	if n < 19 || n > 24 {
		return nil, errors.Wrapf(ErrMalformedLength, "rejoin length %d", n)
	}

	f := &Frame{
		Kind:   Rejoin,
		MHdr:   phy[0],
		RJType: phy[1],
		PDU:    dup(phy),
	}

	switch f.RJType {
	case 0, 2:
		if n != 19 {
			return nil, errors.Wrapf(ErrMalformedLength, "rejoin type %d length %d", f.RJType, n)
		}
		f.NetID = uint32(phy[2]) | uint32(phy[3])<<8 | uint32(phy[4])<<16
		f.DevEUI = euiFromLE(phy[5:13])
		f.RJCount = binary.LittleEndian.Uint16(phy[13:15])
		f.MIC = int32(binary.LittleEndian.Uint32(phy[15:19]))
	case 1:
		if n != 24 {
			return nil, errors.Wrapf(ErrMalformedLength, "rejoin type 1 length %d", n)
		}
		f.JoinEUI = euiFromLE(phy[2:10])
		f.DevEUI = euiFromLE(phy[10:18])
		f.RJCount = binary.LittleEndian.Uint16(phy[18:20])
		f.MIC = int32(binary.LittleEndian.Uint32(phy[20:24]))
	default:
		return nil, errors.Wrapf(ErrBadRejoinType, "type %d", f.RJType)
	}
	return f, nil
}

func (d *Decoder) admitJoinEUI(eui uint64) bool {
	if len(d.joinEUIRanges) == 0 {
		return true
	}
	for _, r := range d.joinEUIRanges {
		if eui >= r[0] && eui <= r[1] {
			return true
		}
	}
	return false
}

// admitDevAddr checks the NetID mask against the top 7 bits of the
// DevAddr, given its most significant (last little-endian) byte.
func (d *Decoder) admitDevAddr(msb byte) bool {
	prefix := msb >> 1
	return d.netIDMask[prefix>>5]&(1<<(prefix&31)) != 0
}

// euiFromLE converts little-endian wire bytes to an EUI64.
func euiFromLE(b []byte) lorawan.EUI64 {
	var eui lorawan.EUI64
	for i := 0; i < 8; i++ {
		eui[7-i] = b[i]
	}
	return eui
}

func dup(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
