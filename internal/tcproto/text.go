package tcproto

import (
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"

	"github.com/lorawan-station/stationd/internal/frame"
	"github.com/lorawan-station/stationd/internal/models"
)

type textCodec struct{}

func (c *textCodec) MarshalUplink(f *frame.Frame, meta models.RadioMetadata, refTime float64) ([]byte, error) {
	dst := make([]byte, 0, 256+2*(len(f.PDU)+len(f.FOpts)+len(f.FRMPayload)))
	dst = append(dst, '{')
	dst = f.AppendJSON(dst)
	dst = append(dst, `,"RefTime":`...)
	dst = appendJSONFloat(dst, refTime, 64)
	dst = append(dst, `,"DR":`...)
	dst = strconv.AppendInt(dst, int64(meta.DR), 10)
	dst = append(dst, `,"Freq":`...)
	dst = strconv.AppendUint(dst, uint64(meta.Freq), 10)
	dst = append(dst, `,"upinfo":{"rctx":`...)
	dst = strconv.AppendInt(dst, meta.RCtx, 10)
	dst = append(dst, `,"xtime":`...)
	dst = strconv.AppendInt(dst, meta.XTime, 10)
	dst = append(dst, `,"gpstime":`...)
	dst = strconv.AppendInt(dst, meta.GPSTime, 10)
	dst = append(dst, `,"fts":`...)
	dst = strconv.AppendInt(dst, int64(meta.FTS), 10)
	dst = append(dst, `,"rssi":`...)
	dst = strconv.AppendInt(dst, int64(meta.RSSI), 10)
	dst = append(dst, `,"snr":`...)
	dst = appendJSONFloat(dst, float64(meta.SNR), 32)
	dst = append(dst, `,"rxtime":`...)
	dst = appendJSONFloat(dst, meta.RxTime, 64)
	dst = append(dst, '}', '}')
	return dst, nil
}

func (c *textCodec) MarshalTxConfirmation(txc TxConfirmation) ([]byte, error) {
	dst := make([]byte, 0, 160)
	dst = append(dst, `{"msgtype":"dntxed","diid":`...)
	dst = strconv.AppendInt(dst, txc.DIID, 10)
	dst = append(dst, `,"DevEui":"`...)
	dst = frame.AppendEUI(dst, txc.DevEUI)
	dst = append(dst, `","rctx":`...)
	dst = strconv.AppendInt(dst, txc.RCtx, 10)
	dst = append(dst, `,"xtime":`...)
	dst = strconv.AppendInt(dst, txc.XTime, 10)
	dst = append(dst, `,"txtime":`...)
	dst = appendJSONFloat(dst, txc.TxTime, 64)
	dst = append(dst, `,"gpstime":`...)
	dst = strconv.AppendInt(dst, txc.GPSTime, 10)
	dst = append(dst, '}')
	return dst, nil
}

func (c *textCodec) MarshalTimesync(ts TimesyncRecord, response bool) ([]byte, error) {
	dst := make([]byte, 0, 96)
	dst = append(dst, `{"msgtype":"timesync","txtime":`...)
	dst = appendJSONFloat(dst, ts.TxTime, 64)
	if response {
		dst = append(dst, `,"gpstime":`...)
		dst = strconv.AppendInt(dst, ts.GPSTime, 10)
		dst = append(dst, `,"xtime":`...)
		dst = strconv.AppendInt(dst, ts.XTime, 10)
	}
	dst = append(dst, '}')
	return dst, nil
}

func (c *textCodec) UnmarshalDownlink(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	var head struct {
		MsgType string `json:"msgtype"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errors.Wrap(err, "unmarshal msgtype")
	}

	switch head.MsgType {
	case "dnmsg":
		var dto dnmsgText
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, errors.Wrap(err, "unmarshal dnmsg")
		}
		d, err := dto.record()
		if err != nil {
			return nil, err
		}
		return &Message{Kind: Dnmsg, Dnmsg: &d}, nil

	case "dnsched":
		var dto struct {
			Schedule []dnmsgText `json:"schedule"`
		}
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, errors.Wrap(err, "unmarshal dnsched")
		}
		msg := &Message{Kind: Dnsched}
		for i := range dto.Schedule {
			d, err := dto.Schedule[i].record()
			if err != nil {
				return nil, err
			}
			msg.Dnsched = append(msg.Dnsched, d)
		}
		return msg, nil

	case "timesync":
		var dto struct {
			TxTime  float64 `json:"txtime"`
			GPSTime int64   `json:"gpstime"`
			XTime   int64   `json:"xtime"`
		}
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, errors.Wrap(err, "unmarshal timesync")
		}
		kind := Timesync
		if dto.GPSTime != 0 {
			kind = TimesyncResp
		}
		return &Message{Kind: kind, Timesync: &TimesyncRecord{
			TxTime:  dto.TxTime,
			GPSTime: dto.GPSTime,
			XTime:   dto.XTime,
		}}, nil

	case "runcmd":
		var dto struct {
			Command   string   `json:"command"`
			Arguments []string `json:"arguments"`
		}
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, errors.Wrap(err, "unmarshal runcmd")
		}
		return &Message{Kind: Runcmd, Runcmd: &RunCommand{
			Command:   dto.Command,
			Arguments: dto.Arguments,
		}}, nil

	case "rmtsh":
		var dto struct {
			User  string `json:"user"`
			Term  string `json:"term"`
			Start bool   `json:"start"`
			Stop  bool   `json:"stop"`
			Data  string `json:"data"`
		}
		if err := json.Unmarshal(data, &dto); err != nil {
			return nil, errors.Wrap(err, "unmarshal rmtsh")
		}
		raw, err := hex.DecodeString(dto.Data)
		if err != nil {
			return nil, errors.Wrap(err, "decode rmtsh data")
		}
		return &Message{Kind: Rmtsh, Rmtsh: &RemoteShell{
			User:  dto.User,
			Term:  dto.Term,
			Start: dto.Start,
			Stop:  dto.Stop,
			Data:  raw,
		}}, nil
	}

	return &Message{Kind: Unknown}, nil
}

// dnmsgText is the JSON shape of a downlink instruction.
type dnmsgText struct {
	DevEUI   string  `json:"DevEui"`
	DC       int     `json:"dC"`
	DIID     int64   `json:"diid"`
	PDU      string  `json:"pdu"`
	RxDelay  int     `json:"RxDelay"`
	RX1DR    int     `json:"RX1DR"`
	RX1Freq  uint32  `json:"RX1Freq"`
	RX2DR    int     `json:"RX2DR"`
	RX2Freq  uint32  `json:"RX2Freq"`
	Priority int     `json:"priority"`
	XTime    int64   `json:"xtime"`
	RCtx     int64   `json:"rctx"`
	GPSTime  int64   `json:"gpstime"`
	DR       int     `json:"dr"`
	Freq     uint32  `json:"freq"`
	MuxTime  float64 `json:"MuxTime"`
}

func (t *dnmsgText) record() (DownlinkMessage, error) {
	d := DownlinkMessage{
		DC:       t.DC,
		DIID:     t.DIID,
		RxDelay:  t.RxDelay,
		RX1DR:    t.RX1DR,
		RX1Freq:  t.RX1Freq,
		RX2DR:    t.RX2DR,
		RX2Freq:  t.RX2Freq,
		Priority: t.Priority,
		XTime:    t.XTime,
		RCtx:     t.RCtx,
		GPSTime:  t.GPSTime,
		DR:       t.DR,
		Freq:     t.Freq,
		MuxTime:  t.MuxTime,
	}

	if t.DevEUI != "" {
		eui, err := frame.ParseEUI(t.DevEUI)
		if err != nil {
			return d, errors.Wrap(err, "parse DevEui")
		}
		d.DevEUI = eui
	}

	pdu, err := hex.DecodeString(t.PDU)
	if err != nil {
		return d, errors.Wrap(err, "decode pdu")
	}
	d.PDU = pdu
	return d, nil
}

func appendJSONFloat(dst []byte, v float64, bits int) []byte {
	return strconv.AppendFloat(dst, v, 'f', -1, bits)
}
