package tcproto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/lorawan"

	"github.com/lorawan-station/stationd/internal/frame"
	"github.com/lorawan-station/stationd/internal/models"
)

var (
	testJreqPHY = []byte{
		0x00,
		0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF, // JoinEUI
		0xF1, 0xE3, 0xF5, 0xE7, 0xF9, 0xEB, 0xFD, 0xEF, // DevEUI
		0xF0, 0xF1, // DevNonce
		0xA0, 0xA1, 0xA2, 0xA3, // MIC
	}

	testDaupPHY = []byte{
		0x40,
		0xAB, 0xCD, 0xEF, 0xFF, // DevAddr
		0x01,       // FCtrl, FOptsLen=1
		0xF3, 0xF4, // FCnt
		0xFF,       // FOpts
		0x20,       // FPort
		0x21, 0x22, // FRMPayload
		0xA0, 0xA1, 0xA2, 0xA3, // MIC
	}

	testRejoinPHY = []byte{
		0xC0,
		0x00,             // RJType 0
		0x01, 0x02, 0x03, // NetID
		0xF1, 0xE3, 0xF5, 0xE7, 0xF9, 0xEB, 0xFD, 0xEF, // DevEUI
		0x10, 0x20, // RJCount
		0xA0, 0xA1, 0xA2, 0xA3, // MIC
	}
)

func mustDecodeFrame(t *testing.T, phy []byte) *frame.Frame {
	t.Helper()
	f, err := frame.NewDecoder().Decode(phy)
	require.NoError(t, err)
	return f
}

func TestAppendUplinkUpdfBytes(t *testing.T) {
	assert := require.New(t)

	f := frame.Frame{
		Kind:    frame.Updf,
		MHdr:    0x40,
		DevAddr: 0x01020304,
		FCnt:    42,
		FPort:   -1,
		MIC:     0x12345678,
	}
	meta := models.RadioMetadata{
		DR:    5,
		Freq:  868100000,
		XTime: 1234567890,
		RSSI:  -50,
		FTS:   -1,
	}

	got := AppendUplink(nil, &f, meta, 0)
	want := []byte{
		0x08, 0x01, // msg_type = MSG_UPDF
		0x12, 0x24, // updf, 36 bytes
		0x08, 0x40, // mhdr
		0x15, 0x04, 0x03, 0x02, 0x01, // dev_addr
		0x20, 0x2A, // fcnt
		0x30, 0x01, // fport = -1
		0x45, 0x78, 0x56, 0x34, 0x12, // mic
		0x4A, 0x12, // upinfo, 18 bytes
		0x08, 0x05, // dr
		0x10, 0xA0, 0xCF, 0xF8, 0x9D, 0x03, // freq
		0x20, 0xA4, 0x8B, 0xB0, 0x99, 0x09, // xtime
		0x30, 0x63, // rssi = -50
		0x40, 0x01, // fts = -1
	}
	assert.Equal(want, got)

	msg, err := Decode(got)
	assert.NoError(err)
	assert.Equal(Updf, msg.Kind)
	assert.Equal(&frame.Frame{
		Kind:       frame.Updf,
		MHdr:       0x40,
		DevAddr:    0x01020304,
		FCnt:       42,
		FPort:      -1,
		MIC:        0x12345678,
		FOpts:      []byte{},
		FRMPayload: []byte{},
	}, msg.Frame)
	assert.Equal(meta, msg.UpInfo)
}

func TestAppendUplinkJreqBytes(t *testing.T) {
	assert := require.New(t)

	f := frame.Frame{
		Kind:     frame.Jreq,
		JoinEUI:  lorawan.EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		DevEUI:   lorawan.EUI64{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01},
		DevNonce: 12345,
		MIC:      -12345678,
	}
	meta := models.RadioMetadata{DR: 5}

	got := AppendUplink(nil, &f, meta, 0)
	want := []byte{
		0x08, 0x02, // msg_type = MSG_JREQ
		0x1A, 0x1E, // jreq, 30 bytes
		0x11, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, // join_eui
		0x19, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // dev_eui
		0x20, 0xB9, 0x60, // dev_nonce
		0x2D, 0xB2, 0x9E, 0x43, 0xFF, // mic
		0x32, 0x02, 0x08, 0x05, // upinfo
	}
	assert.Equal(want, got)

	msg, err := Decode(got)
	assert.NoError(err)
	assert.Equal(Jreq, msg.Kind)
	assert.Equal(f.JoinEUI, msg.Frame.JoinEUI)
	assert.Equal(f.DevEUI, msg.Frame.DevEUI)
	assert.EqualValues(12345, msg.Frame.DevNonce)
	assert.EqualValues(-12345678, msg.Frame.MIC)
	assert.Equal(5, msg.UpInfo.DR)
}

func TestAppendTxConfirmationBytes(t *testing.T) {
	assert := require.New(t)

	txc := TxConfirmation{
		DIID:   123456,
		DevEUI: lorawan.EUI64{0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01},
		XTime:  1234567890123,
	}

	got := AppendTxConfirmation(nil, txc)
	want := []byte{
		0x08, 0x04, // msg_type = MSG_DNTXED
		0x2A, 0x14, // dntxed, 20 bytes
		0x08, 0xC0, 0xC4, 0x07, // diid, plain varint
		0x11, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, // dev_eui
		0x20, 0x96, 0x93, 0xD8, 0x9F, 0xEE, 0x47, // xtime
	}
	assert.Equal(want, got)

	msg, err := Decode(got)
	assert.NoError(err)
	assert.Equal(Dntxed, msg.Kind)
	assert.Equal(&txc, msg.Dntxed)
}

func TestAppendTimesyncMsgType(t *testing.T) {
	assert := require.New(t)

	req := AppendTimesync(nil, TimesyncRecord{TxTime: 1706100000.5}, false)
	assert.EqualValues(0x08, req[0])
	assert.EqualValues(msgTypeTimesync, req[1])

	resp := AppendTimesync(nil, TimesyncRecord{TxTime: 1706100000.5, GPSTime: 1390852367000000, XTime: 77}, true)
	assert.EqualValues(msgTypeTimesyncResp, resp[1])

	msg, err := Decode(resp)
	assert.NoError(err)
	assert.Equal(TimesyncResp, msg.Kind)
	assert.Equal(1706100000.5, msg.Timesync.TxTime)
	assert.EqualValues(1390852367000000, msg.Timesync.GPSTime)
	assert.EqualValues(77, msg.Timesync.XTime)
}

func TestAppendRawFrame(t *testing.T) {
	assert := require.New(t)
	meta := models.RadioMetadata{DR: 2, Freq: 868300000, RSSI: -100, FTS: -1}

	t.Run("empty", func(t *testing.T) {
		_, err := AppendRawFrame(nil, nil, meta, 0)
		require.ErrorIs(t, err, ErrInvalidFrame)
	})

	t.Run("matches parsed encoding", func(t *testing.T) {
		for _, phy := range [][]byte{testJreqPHY, testDaupPHY, testRejoinPHY} {
			raw, err := AppendRawFrame(nil, phy, meta, 1.5)
			require.NoError(t, err)
			parsed := AppendUplink(nil, mustDecodeFrame(t, phy), meta, 1.5)
			require.Equal(t, parsed, raw)
		}
	})

	t.Run("join accept passthrough", func(t *testing.T) {
		phy := append([]byte{0x20}, []byte("fifteen bytes..")...)
		raw, err := AppendRawFrame(nil, phy, meta, 0)
		require.NoError(t, err)

		msg, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, Propdf, msg.Kind)
		require.Equal(t, phy, msg.Frame.PDU)
	})

	t.Run("downlink data passthrough", func(t *testing.T) {
		phy := make([]byte, 14)
		phy[0] = 0x60
		raw, err := AppendRawFrame(nil, phy, meta, 0)
		require.NoError(t, err)

		msg, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, Propdf, msg.Kind)
		require.Equal(t, phy, msg.Frame.PDU)
	})

	t.Run("major bits ignored", func(t *testing.T) {
		phy := append([]byte(nil), testDaupPHY...)
		phy[0] = 0x41
		raw, err := AppendRawFrame(nil, phy, meta, 0)
		require.NoError(t, err)

		msg, err := Decode(raw)
		require.NoError(t, err)
		require.Equal(t, Updf, msg.Kind)
		require.EqualValues(t, 0x41, msg.Frame.MHdr)
	})

	t.Run("length checks", func(t *testing.T) {
		_, err := AppendRawFrame(nil, testJreqPHY[:22], meta, 0)
		require.ErrorIs(t, err, ErrInvalidFrame)

		_, err = AppendRawFrame(nil, testDaupPHY[:11], meta, 0)
		require.ErrorIs(t, err, ErrInvalidFrame)

		overrun := append([]byte(nil), testDaupPHY[:12]...)
		overrun[5] = 0x0F
		_, err = AppendRawFrame(nil, overrun, meta, 0)
		require.ErrorIs(t, err, ErrInvalidFrame)
	})
}

func TestEncodeFixedBuffer(t *testing.T) {
	assert := require.New(t)

	f := mustDecodeFrame(t, testDaupPHY)
	meta := models.RadioMetadata{DR: 3, Freq: 903100000, RSSI: -95, SNR: 7.5, FTS: -1}

	msg := AppendUplink(nil, f, meta, 1706100000.123)

	small := make([]byte, 10)
	n, err := EncodeUplink(small, f, meta, 1706100000.123)
	assert.ErrorIs(err, ErrBufferTooSmall)
	assert.Zero(n)
	assert.Equal(make([]byte, 10), small)

	exact := make([]byte, len(msg))
	n, err = EncodeUplink(exact, f, meta, 1706100000.123)
	assert.NoError(err)
	assert.Equal(len(msg), n)
	assert.Equal(msg, exact[:n])

	large := make([]byte, len(msg)+64)
	n, err = EncodeUplink(large, f, meta, 1706100000.123)
	assert.NoError(err)
	assert.Equal(msg, large[:n])

	_, err = EncodeRawFrame(small, testDaupPHY, meta, 0)
	assert.ErrorIs(err, ErrBufferTooSmall)

	_, err = EncodeTxConfirmation(make([]byte, 2), TxConfirmation{DIID: 7})
	assert.ErrorIs(err, ErrBufferTooSmall)

	n, err = EncodeTimesync(make([]byte, 32), TimesyncRecord{TxTime: 1.5}, false)
	assert.NoError(err)
	assert.Greater(n, 0)
}

func TestAppendUpdfPDUOnly(t *testing.T) {
	assert := require.New(t)

	meta := models.RadioMetadata{DR: 3, Freq: 903100000, XTime: 0x300000001234, RSSI: -95, SNR: 7.5, FTS: -1}
	got := AppendUpdfPDUOnly(nil, testDaupPHY, meta, 1706234567.25)

	parsed := AppendUplink(nil, mustDecodeFrame(t, testDaupPHY), meta, 1706234567.25)
	assert.NotEqual(parsed, got)

	msg, err := Decode(got)
	assert.NoError(err)
	assert.Equal(Updf, msg.Kind)
	assert.Equal(testDaupPHY, msg.Frame.PDU)
	assert.Zero(msg.Frame.MHdr)
	assert.Zero(msg.Frame.DevAddr)
	assert.Zero(msg.Frame.FCnt)
	assert.Equal(meta, msg.UpInfo)
	assert.Equal(1706234567.25, msg.RefTime)
}
