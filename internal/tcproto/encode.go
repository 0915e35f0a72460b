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

// TcMessage field numbers.
const (
	fldMsgType  = 1
	fldUpdf     = 2
	fldJreq     = 3
	fldPropdf   = 4
	fldDntxed   = 5
	fldTimesync = 6
	fldDnmsg    = 10
	fldDnsched  = 11
	fldRuncmd   = 13
	fldRmtsh    = 14
)

// MsgType discriminants.
const (
	msgTypeUpdf         = 1
	msgTypeJreq         = 2
	msgTypePropdf       = 3
	msgTypeDntxed       = 4
	msgTypeTimesync     = 5
	msgTypeDnmsg        = 10
	msgTypeDnsched      = 11
	msgTypeTimesyncResp = 12
	msgTypeRuncmd       = 13
	msgTypeRmtsh        = 14
)

// AppendUplink appends the binary message for a classified frame to dst
// and returns the extended buffer. Data uplinks and join-requests are
// encoded field by field, every other kind passes through as a
// proprietary frame carrying the whole PDU.
func AppendUplink(dst []byte, f *frame.Frame, meta models.RadioMetadata, refTime float64) []byte {
	switch f.Kind {
	case frame.Updf:
		return appendUpdf(dst, f, meta, refTime)
	case frame.Jreq:
		return appendJreqFields(dst, f.MHdr, euiValue(f.JoinEUI), euiValue(f.DevEUI), f.DevNonce, f.MIC, meta, refTime)
	default:
		return AppendProprietary(dst, f.PDU, meta, refTime)
	}
}

// AppendUpdfPDUOnly appends an updf message that carries the raw PDU
// instead of parsed frame fields.
func AppendUpdfPDUOnly(dst []byte, pdu []byte, meta models.RadioMetadata, refTime float64) []byte {
	var sub []byte
	sub = appendUpInfo(sub, 9, 10, meta, refTime)
	sub = appendBytesField(sub, 11, pdu)
	return appendEnvelope(dst, msgTypeUpdf, fldUpdf, sub)
}

// AppendProprietary appends a propdf message carrying an opaque frame.
func AppendProprietary(dst []byte, pdu []byte, meta models.RadioMetadata, refTime float64) []byte {
	var sub []byte
	sub = appendBytesField(sub, 1, pdu)
	sub = appendUpInfo(sub, 2, 3, meta, refTime)
	return appendEnvelope(dst, msgTypePropdf, fldPropdf, sub)
}

// AppendRawFrame inspects the header byte of an undecoded frame and
// appends the matching uplink message: data uplinks and join-requests
// are parsed at fixed offsets, everything else passes through as a
// proprietary frame. No admission filters apply on this path.
func AppendRawFrame(dst []byte, phy []byte, meta models.RadioMetadata, refTime float64) ([]byte, error) {
	if len(phy) == 0 {
		return nil, errors.Wrap(ErrInvalidFrame, "empty frame")
	}

	switch phy[0] & 0xe0 {
	case 0x00: // join-request
		if len(phy) < 23 {
			return nil, errors.Wrapf(ErrInvalidFrame, "jreq length %d", len(phy))
		}
		return appendJreqFields(dst, phy[0],
			binary.LittleEndian.Uint64(phy[1:9]),
			binary.LittleEndian.Uint64(phy[9:17]),
			binary.LittleEndian.Uint16(phy[17:19]),
			int32(binary.LittleEndian.Uint32(phy[19:23])),
			meta, refTime), nil

	case 0x40, 0x80: // data uplink
		if len(phy) < 12 {
			return nil, errors.Wrapf(ErrInvalidFrame, "data frame length %d", len(phy))
		}
		foptsLen := int(phy[5] & 0x0f)
		if 8+foptsLen+4 > len(phy) {
			return nil, errors.Wrapf(ErrInvalidFrame, "fopts length %d exceeds frame length %d", foptsLen, len(phy))
		}
		f := frame.Frame{
			Kind:    frame.Updf,
			MHdr:    phy[0],
			DevAddr: int32(binary.LittleEndian.Uint32(phy[1:5])),
			FCtrl:   phy[5],
			FCnt:    binary.LittleEndian.Uint16(phy[6:8]),
			FOpts:   phy[8 : 8+foptsLen],
			FPort:   -1,
			MIC:     int32(binary.LittleEndian.Uint32(phy[len(phy)-4:])),
		}
		if portOff := 8 + foptsLen; portOff < len(phy)-4 {
			f.FPort = int(phy[portOff])
			f.FRMPayload = phy[portOff+1 : len(phy)-4]
		}
		return appendUpdf(dst, &f, meta, refTime), nil

	default: // join-accept, data downlink, rejoin, proprietary
		return AppendProprietary(dst, phy, meta, refTime), nil
	}
}

// AppendTxConfirmation appends a dntxed message to dst.
func AppendTxConfirmation(dst []byte, txc TxConfirmation) []byte {
	var sub []byte
	sub = appendInt64Field(sub, 1, txc.DIID)
	sub = appendFixed64Field(sub, 2, euiValue(txc.DevEUI))
	sub = appendZigZag64Field(sub, 3, txc.RCtx)
	sub = appendZigZag64Field(sub, 4, txc.XTime)
	sub = appendDoubleField(sub, 5, txc.TxTime)
	sub = appendZigZag64Field(sub, 6, txc.GPSTime)
	return appendEnvelope(dst, msgTypeDntxed, fldDntxed, sub)
}

// AppendTimesync appends a timesync message. With response set the
// envelope is marked as a time-sync response.
func AppendTimesync(dst []byte, ts TimesyncRecord, response bool) []byte {
	var sub []byte
	sub = appendDoubleField(sub, 1, ts.TxTime)
	sub = appendZigZag64Field(sub, 2, ts.GPSTime)
	sub = appendZigZag64Field(sub, 3, ts.XTime)
	msgType := uint64(msgTypeTimesync)
	if response {
		msgType = msgTypeTimesyncResp
	}
	return appendEnvelope(dst, msgType, fldTimesync, sub)
}

// AppendDownlinkMessage appends a dnmsg message to dst.
func AppendDownlinkMessage(dst []byte, d DownlinkMessage) []byte {
	return appendEnvelope(dst, msgTypeDnmsg, fldDnmsg, marshalDownlink(d))
}

// AppendDownlinkSchedule appends a dnsched message carrying the given
// downlink entries.
func AppendDownlinkSchedule(dst []byte, sched []DownlinkMessage) []byte {
	var sub []byte
	for _, d := range sched {
		sub = protowire.AppendTag(sub, 1, protowire.BytesType)
		sub = protowire.AppendBytes(sub, marshalDownlink(d))
	}
	return appendEnvelope(dst, msgTypeDnsched, fldDnsched, sub)
}

// AppendRunCommand appends a runcmd message to dst.
func AppendRunCommand(dst []byte, cmd RunCommand) []byte {
	var sub []byte
	sub = appendStringField(sub, 1, cmd.Command)
	for _, arg := range cmd.Arguments {
		sub = protowire.AppendTag(sub, 2, protowire.BytesType)
		sub = protowire.AppendString(sub, arg)
	}
	return appendEnvelope(dst, msgTypeRuncmd, fldRuncmd, sub)
}

// AppendRemoteShell appends a rmtsh message to dst.
func AppendRemoteShell(dst []byte, sh RemoteShell) []byte {
	var sub []byte
	sub = appendStringField(sub, 1, sh.User)
	sub = appendStringField(sub, 2, sh.Term)
	sub = appendBoolField(sub, 3, sh.Start)
	sub = appendBoolField(sub, 4, sh.Stop)
	sub = appendBytesField(sub, 5, sh.Data)
	return appendEnvelope(dst, msgTypeRmtsh, fldRmtsh, sub)
}

// EncodeUplink encodes the message for f into the fixed-size buf and
// returns the encoded length. It fails with ErrBufferTooSmall when buf
// cannot hold the whole message, leaving buf untouched.
func EncodeUplink(buf []byte, f *frame.Frame, meta models.RadioMetadata, refTime float64) (int, error) {
	return fitBuffer(buf, AppendUplink(nil, f, meta, refTime))
}

// EncodeRawFrame is the fixed-buffer form of AppendRawFrame.
func EncodeRawFrame(buf []byte, phy []byte, meta models.RadioMetadata, refTime float64) (int, error) {
	msg, err := AppendRawFrame(nil, phy, meta, refTime)
	if err != nil {
		return 0, err
	}
	return fitBuffer(buf, msg)
}

// EncodeTxConfirmation is the fixed-buffer form of AppendTxConfirmation.
func EncodeTxConfirmation(buf []byte, txc TxConfirmation) (int, error) {
	return fitBuffer(buf, AppendTxConfirmation(nil, txc))
}

// EncodeTimesync is the fixed-buffer form of AppendTimesync.
func EncodeTimesync(buf []byte, ts TimesyncRecord, response bool) (int, error) {
	return fitBuffer(buf, AppendTimesync(nil, ts, response))
}

func fitBuffer(buf, msg []byte) (int, error) {
	if len(msg) > len(buf) {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d bytes, have %d", len(msg), len(buf))
	}
	return copy(buf, msg), nil
}

func appendUpdf(dst []byte, f *frame.Frame, meta models.RadioMetadata, refTime float64) []byte {
	var sub []byte
	sub = appendUvarintField(sub, 1, uint64(f.MHdr))
	sub = appendSfixed32Field(sub, 2, f.DevAddr)
	sub = appendUvarintField(sub, 3, uint64(f.FCtrl))
	sub = appendUvarintField(sub, 4, uint64(f.FCnt))
	sub = appendBytesField(sub, 5, f.FOpts)
	sub = appendZigZag32Field(sub, 6, int32(f.FPort))
	sub = appendBytesField(sub, 7, f.FRMPayload)
	sub = appendSfixed32Field(sub, 8, f.MIC)
	sub = appendUpInfo(sub, 9, 10, meta, refTime)
	return appendEnvelope(dst, msgTypeUpdf, fldUpdf, sub)
}

func appendJreqFields(dst []byte, mhdr uint8, joinEUI, devEUI uint64, devNonce uint16, mic int32, meta models.RadioMetadata, refTime float64) []byte {
	var sub []byte
	sub = appendUvarintField(sub, 1, uint64(mhdr))
	sub = appendFixed64Field(sub, 2, joinEUI)
	sub = appendFixed64Field(sub, 3, devEUI)
	sub = appendUvarintField(sub, 4, uint64(devNonce))
	sub = appendSfixed32Field(sub, 5, mic)
	sub = appendUpInfo(sub, 6, 7, meta, refTime)
	return appendEnvelope(dst, msgTypeJreq, fldJreq, sub)
}

// appendUpInfo emits the upinfo submessage and the trailing ref_time
// field. The submessage is emitted even when all metadata is zero.
func appendUpInfo(dst []byte, upinfoNum, refNum protowire.Number, meta models.RadioMetadata, refTime float64) []byte {
	dst = protowire.AppendTag(dst, upinfoNum, protowire.BytesType)
	dst = protowire.AppendBytes(dst, marshalRadioMetadata(meta))
	return appendDoubleField(dst, refNum, refTime)
}

func marshalRadioMetadata(meta models.RadioMetadata) []byte {
	var sub []byte
	sub = appendUvarintField(sub, 1, uint64(meta.DR))
	sub = appendUvarintField(sub, 2, uint64(meta.Freq))
	sub = appendZigZag64Field(sub, 3, meta.RCtx)
	sub = appendZigZag64Field(sub, 4, meta.XTime)
	sub = appendZigZag64Field(sub, 5, meta.GPSTime)
	sub = appendZigZag32Field(sub, 6, meta.RSSI)
	sub = appendFloatField(sub, 7, meta.SNR)
	sub = appendZigZag32Field(sub, 8, meta.FTS)
	sub = appendDoubleField(sub, 9, meta.RxTime)
	return sub
}

func marshalDownlink(d DownlinkMessage) []byte {
	var sub []byte
	sub = appendFixed64Field(sub, 1, euiValue(d.DevEUI))
	sub = appendUvarintField(sub, 2, uint64(d.DC))
	sub = appendInt64Field(sub, 3, d.DIID)
	sub = appendBytesField(sub, 4, d.PDU)
	sub = appendUvarintField(sub, 5, uint64(d.RxDelay))
	sub = appendUvarintField(sub, 6, uint64(d.RX1DR))
	sub = appendUvarintField(sub, 7, uint64(d.RX1Freq))
	sub = appendUvarintField(sub, 8, uint64(d.RX2DR))
	sub = appendUvarintField(sub, 9, uint64(d.RX2Freq))
	sub = appendUvarintField(sub, 10, uint64(d.Priority))
	sub = appendZigZag64Field(sub, 11, d.XTime)
	sub = appendZigZag64Field(sub, 12, d.RCtx)
	sub = appendZigZag64Field(sub, 13, d.GPSTime)
	sub = appendUvarintField(sub, 14, uint64(d.DR))
	sub = appendUvarintField(sub, 15, uint64(d.Freq))
	sub = appendDoubleField(sub, 16, d.MuxTime)
	return sub
}

// appendEnvelope wraps a payload submessage into a TcMessage. The
// payload field is emitted even when empty so the variant tag always
// survives the wire.
func appendEnvelope(dst []byte, msgType uint64, num protowire.Number, payload []byte) []byte {
	dst = appendUvarintField(dst, fldMsgType, msgType)
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	dst = protowire.AppendBytes(dst, payload)
	return dst
}

// Field helpers follow proto3 presence rules: zero values are skipped.

func appendUvarintField(dst []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, v)
}

func appendInt64Field(dst []byte, num protowire.Number, v int64) []byte {
	return appendUvarintField(dst, num, uint64(v))
}

func appendZigZag32Field(dst []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, protowire.EncodeZigZag(int64(v)))
}

func appendZigZag64Field(dst []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, protowire.EncodeZigZag(v))
}

func appendSfixed32Field(dst []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(dst, uint32(v))
}

func appendFixed64Field(dst []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(dst, v)
}

func appendDoubleField(dst []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(dst, math.Float64bits(v))
}

func appendFloatField(dst []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(dst, math.Float32bits(v))
}

func appendBytesField(dst []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendBytes(dst, v)
}

func appendStringField(dst []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.BytesType)
	return protowire.AppendString(dst, v)
}

func appendBoolField(dst []byte, num protowire.Number, v bool) []byte {
	if !v {
		return dst
	}
	dst = protowire.AppendTag(dst, num, protowire.VarintType)
	return protowire.AppendVarint(dst, 1)
}

func euiValue(eui lorawan.EUI64) uint64 {
	return binary.BigEndian.Uint64(eui[:])
}
