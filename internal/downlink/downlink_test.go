package downlink

import (
	"encoding/json"
	"testing"

	"github.com/brocaar/lorawan"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-station/stationd/internal/backend"
	"github.com/lorawan-station/stationd/internal/band"
	"github.com/lorawan-station/stationd/internal/config"
	"github.com/lorawan-station/stationd/internal/models"
	"github.com/lorawan-station/stationd/internal/storage"
	"github.com/lorawan-station/stationd/internal/tcproto"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

type testBackend struct {
	radioPacketChan chan models.RadioPacket
	lnsMessageChan  chan []byte
	uplinks         [][]byte
	txPackets       []models.TXPacket
}

func newTestBackend() *testBackend {
	return &testBackend{
		radioPacketChan: make(chan models.RadioPacket, 1),
		lnsMessageChan:  make(chan []byte, 1),
	}
}

func (b *testBackend) RadioPacketChan() chan models.RadioPacket {
	return b.radioPacketChan
}

func (b *testBackend) LNSMessageChan() chan []byte {
	return b.lnsMessageChan
}

func (b *testBackend) PublishUplink(payload []byte) error {
	b.uplinks = append(b.uplinks, payload)
	return nil
}

func (b *testBackend) PublishTx(pkt models.TXPacket) error {
	b.txPackets = append(b.txPackets, pkt)
	return nil
}

func (b *testBackend) Close() error {
	close(b.radioPacketChan)
	close(b.lnsMessageChan)
	return nil
}

func testConfig() config.Config {
	var c config.Config
	c.Station.ID = "0102030405060708"
	c.Redis.Servers = []string{"localhost:6379"}
	return c
}

func TestHandleLNSMessage(t *testing.T) {
	assert := require.New(t)
	assert.NoError(storage.Setup(testConfig()))
	assert.NoError(band.Setup(testConfig()))

	t.Run("Text dnmsg", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{
			"msgtype": "dnmsg",
			"DevEui": "01-02-03-04-05-06-07-08",
			"diid": 7,
			"pdu": "60aabb",
			"RxDelay": 1,
			"RX1DR": 2,
			"RX1Freq": 869525000,
			"priority": 10,
			"xtime": 99,
			"rctx": 3
		}`)))

		assert.Len(b.txPackets, 1)
		assert.Equal(models.TXPacket{
			DevEUI:   lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
			DIID:     7,
			PDU:      []byte{0x60, 0xaa, 0xbb},
			DR:       2,
			Freq:     869525000,
			RCtx:     3,
			XTime:    99,
			Priority: 10,
		}, b.txPackets[0])

		assert.Len(b.uplinks, 1)
		var txc map[string]interface{}
		assert.NoError(json.Unmarshal(b.uplinks[0], &txc))
		assert.Equal("dntxed", txc["msgtype"])
		assert.Equal(float64(7), txc["diid"])
		assert.NotEqual(float64(0), txc["gpstime"])
	})

	t.Run("Binary dnmsg", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		c := testConfig()
		c.Station.ProtocolFormat = "protobuf"
		s := NewServer(c)

		in := tcproto.AppendDownlinkMessage(nil, tcproto.DownlinkMessage{
			DevEUI:  lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
			DIID:    123456,
			PDU:     []byte{0x60, 0x01, 0x02},
			RX1DR:   5,
			RX1Freq: 868100000,
			XTime:   1234,
			RCtx:    2,
		})
		assert.NoError(s.handleLNSMessage(in))

		assert.Len(b.txPackets, 1)
		assert.Equal(int64(123456), b.txPackets[0].DIID)
		assert.Equal(5, b.txPackets[0].DR)
		assert.Equal(uint32(868100000), b.txPackets[0].Freq)

		assert.Len(b.uplinks, 1)
		msg, err := tcproto.Decode(b.uplinks[0])
		assert.NoError(err)
		assert.Equal(tcproto.Dntxed, msg.Kind)
		assert.Equal(int64(123456), msg.Dntxed.DIID)
		assert.Equal(lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}, msg.Dntxed.DevEUI)
		assert.NotEqual(int64(0), msg.Dntxed.GPSTime)
	})

	t.Run("Text dnsched", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{
			"msgtype": "dnsched",
			"schedule": [
				{"pdu": "60aa", "dr": 0, "freq": 869525000, "gpstime": 1},
				{"pdu": "60bb", "dr": 3, "freq": 868300000, "gpstime": 2}
			]
		}`)))

		assert.Len(b.txPackets, 2)
		assert.Equal([]byte{0x60, 0xaa}, b.txPackets[0].PDU)
		assert.Equal([]byte{0x60, 0xbb}, b.txPackets[1].PDU)
		assert.Len(b.uplinks, 2)
	})

	t.Run("Illegal downlink data-rate", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{
			"msgtype": "dnmsg",
			"pdu": "60aa",
			"RX1DR": 9,
			"RX1Freq": 869525000
		}`)))
		assert.Len(b.txPackets, 0)
		assert.Len(b.uplinks, 0)
	})

	t.Run("Missing transmit frequency", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.Error(s.handleLNSMessage([]byte(`{"msgtype": "dnmsg", "pdu": "60aa"}`)))
		assert.Len(b.txPackets, 0)
	})

	t.Run("Timesync request", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{"msgtype": "timesync", "txtime": 123.5}`)))

		assert.Len(b.uplinks, 1)
		var resp map[string]interface{}
		assert.NoError(json.Unmarshal(b.uplinks[0], &resp))
		assert.Equal("timesync", resp["msgtype"])
		assert.Equal(float64(123.5), resp["txtime"])
		assert.NotEqual(float64(0), resp["gpstime"])
	})

	t.Run("Timesync response recorded", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{
			"msgtype": "timesync",
			"txtime": 1.5,
			"gpstime": 1390852367000000,
			"xtime": 7
		}`)))
		assert.Len(b.uplinks, 0)
		assert.Len(b.txPackets, 0)
	})

	t.Run("Runcmd disabled", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{
			"msgtype": "runcmd",
			"command": "echo",
			"arguments": ["hi"]
		}`)))
		assert.Len(b.uplinks, 0)
	})

	t.Run("Rmtsh dropped", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{
			"msgtype": "rmtsh",
			"user": "admin",
			"start": true,
			"data": "6869"
		}`)))
		assert.Len(b.uplinks, 0)
	})

	t.Run("Unknown message type", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.NoError(s.handleLNSMessage([]byte(`{"msgtype": "wat"}`)))
		assert.Len(b.uplinks, 0)
	})

	t.Run("Malformed message", func(t *testing.T) {
		assert := require.New(t)

		b := newTestBackend()
		backend.SetBackend(b)

		s := NewServer(testConfig())
		assert.Error(s.handleLNSMessage([]byte(`not json`)))
	})
}
