package tcproto

import (
	"encoding/binary"
	"math"

	"github.com/brocaar/lorawan"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lorawan-station/stationd/internal/frame"
	"github.com/lorawan-station/stationd/internal/models"
)

// Decode parses a binary TcMessage envelope. The message-type
// discriminant and the populated payload variant must agree, a mismatch
// is an error. A discriminant this version does not know yields a
// message of Kind Unknown instead of an error.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	var (
		msgType    uint64
		payloadNum protowire.Number
		payload    [][]byte
	)

	for b := data; len(b) > 0; {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "consume tag")
		}
		b = b[n:]

		switch {
		case num == fldMsgType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "consume msg_type")
			}
			msgType, b = v, b[n:]

		case typ == protowire.BytesType && isPayloadField(num):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "consume payload")
			}
			if num != payloadNum {
				payloadNum, payload = num, payload[:0]
			}
			payload = append(payload, v)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "skip field")
			}
			b = b[n:]
		}
	}

	want, kind := payloadFieldFor(msgType)
	if want == 0 {
		return &Message{Kind: Unknown}, nil
	}
	if payloadNum != want {
		return nil, errors.Wrapf(ErrKindMismatch, "msg_type %d carries payload field %d", msgType, payloadNum)
	}

	msg := &Message{Kind: kind}
	switch kind {
	case Updf:
		msg.Frame = &frame.Frame{Kind: frame.Updf}
	case Jreq:
		msg.Frame = &frame.Frame{Kind: frame.Jreq}
	case Propdf:
		msg.Frame = &frame.Frame{Kind: frame.Propdf}
	case Dntxed:
		msg.Dntxed = &TxConfirmation{}
	case Timesync, TimesyncResp:
		msg.Timesync = &TimesyncRecord{}
	case Dnmsg:
		msg.Dnmsg = &DownlinkMessage{}
	case Runcmd:
		msg.Runcmd = &RunCommand{}
	case Rmtsh:
		msg.Rmtsh = &RemoteShell{}
	}

	for _, chunk := range payload {
		if err := decodePayload(msg, chunk); err != nil {
			return nil, errors.Wrapf(err, "decode %s", kind)
		}
	}

	switch kind {
	case Updf:
		if msg.Frame.FOpts == nil {
			msg.Frame.FOpts = []byte{}
		}
		if msg.Frame.FRMPayload == nil {
			msg.Frame.FRMPayload = []byte{}
		}
	case Propdf:
		if len(msg.Frame.PDU) > 0 {
			msg.Frame.MHdr = msg.Frame.PDU[0]
		}
	}
	return msg, nil
}

func isPayloadField(num protowire.Number) bool {
	switch num {
	case fldUpdf, fldJreq, fldPropdf, fldDntxed, fldTimesync, fldDnmsg, fldDnsched, fldRuncmd, fldRmtsh:
		return true
	}
	return false
}

func payloadFieldFor(msgType uint64) (protowire.Number, Kind) {
	switch msgType {
	case msgTypeUpdf:
		return fldUpdf, Updf
	case msgTypeJreq:
		return fldJreq, Jreq
	case msgTypePropdf:
		return fldPropdf, Propdf
	case msgTypeDntxed:
		return fldDntxed, Dntxed
	case msgTypeTimesync:
		return fldTimesync, Timesync
	case msgTypeTimesyncResp:
		return fldTimesync, TimesyncResp
	case msgTypeDnmsg:
		return fldDnmsg, Dnmsg
	case msgTypeDnsched:
		return fldDnsched, Dnsched
	case msgTypeRuncmd:
		return fldRuncmd, Runcmd
	case msgTypeRmtsh:
		return fldRmtsh, Rmtsh
	}
	return 0, Unknown
}

func decodePayload(msg *Message, b []byte) error {
	switch msg.Kind {
	case Updf:
		return decodeUpdf(msg, b)
	case Jreq:
		return decodeJreq(msg, b)
	case Propdf:
		return decodePropdf(msg, b)
	case Dntxed:
		return decodeDntxed(msg.Dntxed, b)
	case Timesync, TimesyncResp:
		return decodeTimesync(msg.Timesync, b)
	case Dnmsg:
		return decodeDownlink(msg.Dnmsg, b)
	case Dnsched:
		return decodeSchedule(msg, b)
	case Runcmd:
		return decodeRuncmd(msg.Runcmd, b)
	case Rmtsh:
		return decodeRmtsh(msg.Rmtsh, b)
	}
	return nil
}

func decodeUpdf(msg *Message, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			msg.Frame.MHdr = uint8(r.varint())
		case 2:
			msg.Frame.DevAddr = r.sfixed32()
		case 3:
			msg.Frame.FCtrl = uint8(r.varint())
		case 4:
			msg.Frame.FCnt = uint16(r.varint())
		case 5:
			msg.Frame.FOpts = r.bytes()
		case 6:
			msg.Frame.FPort = int(r.zigzag32())
		case 7:
			msg.Frame.FRMPayload = r.bytes()
		case 8:
			msg.Frame.MIC = r.sfixed32()
		case 9:
			r.message(func(sub []byte) error {
				return decodeRadioMetadata(&msg.UpInfo, sub)
			})
		case 10:
			msg.RefTime = r.double()
		case 11:
			msg.Frame.PDU = r.bytes()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeJreq(msg *Message, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			msg.Frame.MHdr = uint8(r.varint())
		case 2:
			msg.Frame.JoinEUI = euiFromValue(r.fixed64())
		case 3:
			msg.Frame.DevEUI = euiFromValue(r.fixed64())
		case 4:
			msg.Frame.DevNonce = uint16(r.varint())
		case 5:
			msg.Frame.MIC = r.sfixed32()
		case 6:
			r.message(func(sub []byte) error {
				return decodeRadioMetadata(&msg.UpInfo, sub)
			})
		case 7:
			msg.RefTime = r.double()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodePropdf(msg *Message, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			msg.Frame.PDU = r.bytes()
		case 2:
			r.message(func(sub []byte) error {
				return decodeRadioMetadata(&msg.UpInfo, sub)
			})
		case 3:
			msg.RefTime = r.double()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeRadioMetadata(meta *models.RadioMetadata, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			meta.DR = int(r.varint())
		case 2:
			meta.Freq = uint32(r.varint())
		case 3:
			meta.RCtx = r.zigzag64()
		case 4:
			meta.XTime = r.zigzag64()
		case 5:
			meta.GPSTime = r.zigzag64()
		case 6:
			meta.RSSI = r.zigzag32()
		case 7:
			meta.SNR = r.float()
		case 8:
			meta.FTS = r.zigzag32()
		case 9:
			meta.RxTime = r.double()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeDntxed(txc *TxConfirmation, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			txc.DIID = int64(r.varint())
		case 2:
			txc.DevEUI = euiFromValue(r.fixed64())
		case 3:
			txc.RCtx = r.zigzag64()
		case 4:
			txc.XTime = r.zigzag64()
		case 5:
			txc.TxTime = r.double()
		case 6:
			txc.GPSTime = r.zigzag64()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeTimesync(ts *TimesyncRecord, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			ts.TxTime = r.double()
		case 2:
			ts.GPSTime = r.zigzag64()
		case 3:
			ts.XTime = r.zigzag64()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeDownlink(d *DownlinkMessage, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			d.DevEUI = euiFromValue(r.fixed64())
		case 2:
			d.DC = int(r.varint())
		case 3:
			d.DIID = int64(r.varint())
		case 4:
			d.PDU = r.bytes()
		case 5:
			d.RxDelay = int(r.varint())
		case 6:
			d.RX1DR = int(r.varint())
		case 7:
			d.RX1Freq = uint32(r.varint())
		case 8:
			d.RX2DR = int(r.varint())
		case 9:
			d.RX2Freq = uint32(r.varint())
		case 10:
			d.Priority = int(r.varint())
		case 11:
			d.XTime = r.zigzag64()
		case 12:
			d.RCtx = r.zigzag64()
		case 13:
			d.GPSTime = r.zigzag64()
		case 14:
			d.DR = int(r.varint())
		case 15:
			d.Freq = uint32(r.varint())
		case 16:
			d.MuxTime = r.double()
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeSchedule(msg *Message, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		if num != 1 {
			r.skip(num)
			continue
		}
		r.message(func(sub []byte) error {
			var d DownlinkMessage
			if err := decodeDownlink(&d, sub); err != nil {
				return err
			}
			msg.Dnsched = append(msg.Dnsched, d)
			return nil
		})
	}
	return r.err
}

func decodeRuncmd(cmd *RunCommand, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			cmd.Command = r.text()
		case 2:
			cmd.Arguments = append(cmd.Arguments, r.text())
		default:
			r.skip(num)
		}
	}
	return r.err
}

func decodeRmtsh(sh *RemoteShell, b []byte) error {
	r := fieldReader{b: b}
	for {
		num, ok := r.next()
		if !ok {
			break
		}
		switch num {
		case 1:
			sh.User = r.text()
		case 2:
			sh.Term = r.text()
		case 3:
			sh.Start = r.varint() != 0
		case 4:
			sh.Stop = r.varint() != 0
		case 5:
			sh.Data = r.bytes()
		default:
			r.skip(num)
		}
	}
	return r.err
}

// fieldReader walks the fields of one message. Accessors check the wire
// type of the current field and record the first error, subsequent
// calls become no-ops.
type fieldReader struct {
	b   []byte
	typ protowire.Type
	err error
}

func (r *fieldReader) next() (protowire.Number, bool) {
	if r.err != nil || len(r.b) == 0 {
		return 0, false
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume tag")
		return 0, false
	}
	r.b = r.b[n:]
	r.typ = typ
	return num, true
}

func (r *fieldReader) varint() uint64 {
	if r.err != nil {
		return 0
	}
	if r.typ != protowire.VarintType {
		r.err = errors.Errorf("wire type %d for varint field", r.typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume varint")
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) zigzag32() int32 {
	return int32(protowire.DecodeZigZag(r.varint()))
}

func (r *fieldReader) zigzag64() int64 {
	return protowire.DecodeZigZag(r.varint())
}

func (r *fieldReader) sfixed32() int32 {
	if r.err != nil {
		return 0
	}
	if r.typ != protowire.Fixed32Type {
		r.err = errors.Errorf("wire type %d for fixed32 field", r.typ)
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume fixed32")
		return 0
	}
	r.b = r.b[n:]
	return int32(v)
}

func (r *fieldReader) fixed64() uint64 {
	if r.err != nil {
		return 0
	}
	if r.typ != protowire.Fixed64Type {
		r.err = errors.Errorf("wire type %d for fixed64 field", r.typ)
		return 0
	}
	v, n := protowire.ConsumeFixed64(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume fixed64")
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *fieldReader) double() float64 {
	return math.Float64frombits(r.fixed64())
}

func (r *fieldReader) float() float32 {
	if r.err != nil {
		return 0
	}
	if r.typ != protowire.Fixed32Type {
		r.err = errors.Errorf("wire type %d for fixed32 field", r.typ)
		return 0
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume fixed32")
		return 0
	}
	r.b = r.b[n:]
	return math.Float32frombits(v)
}

// bytes returns a fresh copy of a length-delimited field, never nil.
func (r *fieldReader) bytes() []byte {
	if r.err != nil {
		return []byte{}
	}
	if r.typ != protowire.BytesType {
		r.err = errors.Errorf("wire type %d for bytes field", r.typ)
		return []byte{}
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume bytes")
		return []byte{}
	}
	r.b = r.b[n:]
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (r *fieldReader) text() string {
	return string(r.bytes())
}

// message feeds a length-delimited field to fn without copying.
func (r *fieldReader) message(fn func([]byte) error) {
	if r.err != nil {
		return
	}
	if r.typ != protowire.BytesType {
		r.err = errors.Errorf("wire type %d for message field", r.typ)
		return
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "consume message")
		return
	}
	r.b = r.b[n:]
	if err := fn(v); err != nil {
		r.err = err
	}
}

func (r *fieldReader) skip(num protowire.Number) {
	if r.err != nil {
		return
	}
	n := protowire.ConsumeFieldValue(num, r.typ, r.b)
	if n < 0 {
		r.err = errors.Wrap(protowire.ParseError(n), "skip field")
		return
	}
	r.b = r.b[n:]
}

func euiFromValue(v uint64) lorawan.EUI64 {
	var eui lorawan.EUI64
	binary.BigEndian.PutUint64(eui[:], v)
	return eui
}
