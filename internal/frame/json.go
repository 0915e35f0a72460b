package frame

import (
	"strconv"
	"strings"

	"github.com/brocaar/lorawan"
)

const hexDigits = "0123456789ABCDEF"

// AppendJSON appends the canonical JSON fields of the frame to dst,
// without enclosing braces, so the caller can extend the object with
// radio metadata. Key order and number formats are part of the protocol.
func (f *Frame) AppendJSON(dst []byte) []byte {
	switch f.Kind {
	case Jacc, Propdf:
		dst = append(dst, `"msgtype":"`...)
		dst = append(dst, f.Kind.String()...)
		dst = append(dst, `","FRMPayload":"`...)
		dst = appendHex(dst, f.PDU)
		dst = append(dst, '"')

	case Jreq:
		dst = append(dst, `"msgtype":"jreq","MHdr":`...)
		dst = strconv.AppendUint(dst, uint64(f.MHdr), 10)
		dst = append(dst, `,"JoinEui":"`...)
		dst = AppendEUI(dst, f.JoinEUI)
		dst = append(dst, `","DevEui":"`...)
		dst = AppendEUI(dst, f.DevEUI)
		dst = append(dst, `","DevNonce":`...)
		dst = strconv.AppendUint(dst, uint64(f.DevNonce), 10)
		dst = append(dst, `,"MIC":`...)
		dst = strconv.AppendInt(dst, int64(f.MIC), 10)

	case Updf, Dndf:
		dst = append(dst, `"msgtype":"`...)
		dst = append(dst, f.Kind.String()...)
		dst = append(dst, `","MHdr":`...)
		dst = strconv.AppendUint(dst, uint64(f.MHdr), 10)
		dst = append(dst, `,"DevAddr":`...)
		dst = strconv.AppendInt(dst, int64(f.DevAddr), 10)
		dst = append(dst, `,"FCtrl":`...)
		dst = strconv.AppendUint(dst, uint64(f.FCtrl), 10)
		dst = append(dst, `,"FCnt":`...)
		dst = strconv.AppendUint(dst, uint64(f.FCnt), 10)
		dst = append(dst, `,"FOpts":"`...)
		dst = appendHex(dst, f.FOpts)
		dst = append(dst, `","FPort":`...)
		dst = strconv.AppendInt(dst, int64(f.FPort), 10)
		dst = append(dst, `,"FRMPayload":"`...)
		dst = appendHex(dst, f.FRMPayload)
		dst = append(dst, `","MIC":`...)
		dst = strconv.AppendInt(dst, int64(f.MIC), 10)

	case Rejoin:
		dst = append(dst, `"msgtype":"rejoin","MHdr":`...)
		dst = strconv.AppendUint(dst, uint64(f.MHdr), 10)
		dst = append(dst, `,"RJType":`...)
		dst = strconv.AppendUint(dst, uint64(f.RJType), 10)
		if f.RJType == 1 {
			dst = append(dst, `,"JoinEui":"`...)
			dst = AppendEUI(dst, f.JoinEUI)
			dst = append(dst, '"')
		} else {
			dst = append(dst, `,"NetID":`...)
			dst = strconv.AppendUint(dst, uint64(f.NetID), 10)
		}
		dst = append(dst, `,"DevEui":"`...)
		dst = AppendEUI(dst, f.DevEUI)
		dst = append(dst, `","RJCount":`...)
		dst = strconv.AppendUint(dst, uint64(f.RJCount), 10)
		dst = append(dst, `,"pdu":"`...)
		dst = appendHex(dst, f.PDU)
		dst = append(dst, `","MIC":`...)
		dst = strconv.AppendInt(dst, int64(f.MIC), 10)
	}
	return dst
}

// MarshalJSON implements json.Marshaler.
func (f *Frame) MarshalJSON() ([]byte, error) {
	dst := make([]byte, 0, 96+2*(len(f.PDU)+len(f.FOpts)+len(f.FRMPayload)))
	dst = append(dst, '{')
	dst = f.AppendJSON(dst)
	dst = append(dst, '}')
	return dst, nil
}

func appendHex(dst, b []byte) []byte {
	for _, v := range b {
		dst = append(dst, hexDigits[v>>4], hexDigits[v&0x0f])
	}
	return dst
}

// AppendEUI renders an EUI as dash separated uppercase hex pairs, most
// significant byte first.
func AppendEUI(dst []byte, eui lorawan.EUI64) []byte {
	for i, v := range eui {
		if i > 0 {
			dst = append(dst, '-')
		}
		dst = append(dst, hexDigits[v>>4], hexDigits[v&0x0f])
	}
	return dst
}

// ParseEUI parses the dash separated text form produced by AppendEUI.
// Plain 16 digit hex without dashes is accepted as well.
func ParseEUI(s string) (lorawan.EUI64, error) {
	var eui lorawan.EUI64
	err := eui.UnmarshalText([]byte(strings.ReplaceAll(s, "-", "")))
	return eui, err
}
