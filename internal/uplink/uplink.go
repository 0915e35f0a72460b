// Package uplink forwards radio frames to the network server. Frames are
// deduplicated, classified, filtered, validated against the active
// data-rate plan and encoded with the configured protocol codec.
package uplink

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lorawan-station/stationd/internal/backend"
	"github.com/lorawan-station/stationd/internal/band"
	"github.com/lorawan-station/stationd/internal/config"
	"github.com/lorawan-station/stationd/internal/frame"
	"github.com/lorawan-station/stationd/internal/framelog"
	"github.com/lorawan-station/stationd/internal/logging"
	"github.com/lorawan-station/stationd/internal/models"
	"github.com/lorawan-station/stationd/internal/storage"
	"github.com/lorawan-station/stationd/internal/tcproto"
)

// dedupLockKeyTempl is the Redis key of the per-frame deduplication lock.
const dedupLockKeyTempl = "station:%s:rx:dedup:%s"

// Server represents a server handling received radio frames.
type Server struct {
	wg        sync.WaitGroup
	stationID string
	dedupTTL  time.Duration
	decoder   *frame.Decoder
	codec     tcproto.Codec
	format    tcproto.Format
}

// NewServer creates a new uplink server for the given configuration.
func NewServer(c config.Config) (*Server, error) {
	decoder, err := frame.NewDecoderFromConfig(c)
	if err != nil {
		return nil, errors.Wrap(err, "setup frame filters error")
	}

	format := tcproto.ParseFormat(c.Station.ProtocolFormat)

	return &Server{
		stationID: c.Station.ID,
		dedupTTL:  c.Station.DeduplicationTTL,
		decoder:   decoder,
		codec:     tcproto.NewCodec(format, c.Station.PDUOnly),
		format:    format,
	}, nil
}

// Start announces the station version to the network server and starts
// handling radio frames.
func (s *Server) Start() error {
	if err := s.announceVersion(); err != nil {
		return errors.Wrap(err, "publish version announcement error")
	}

	go func() {
		s.wg.Add(1)
		defer s.wg.Done()
		s.handleRadioPackets()
	}()
	return nil
}

// Stop closes the backend and waits for the server to complete the
// pending frames.
func (s *Server) Stop() error {
	if err := backend.GetBackend().Close(); err != nil {
		return errors.Wrap(err, "close backend error")
	}
	log.Info("uplink: waiting for pending frames to complete")
	s.wg.Wait()
	return nil
}

// handleRadioPackets consumes the radio packets received by the backend
// and handles each in a separate go-routine. Errors are logged.
func (s *Server) handleRadioPackets() {
	for pkt := range backend.GetBackend().RadioPacketChan() {
		go func(pkt models.RadioPacket) {
			s.wg.Add(1)
			defer s.wg.Done()
			if err := s.handleRadioPacket(pkt); err != nil {
				uplinkFrameErrorCounter().Inc()
				log.WithFields(log.Fields{
					"data_base64": base64.StdEncoding.EncodeToString(pkt.PHYPayload),
					"freq":        pkt.RXInfo.Freq,
				}).WithError(err).Error("uplink: processing radio packet error")
			}
		}(pkt)
	}
}

func (s *Server) handleRadioPacket(pkt models.RadioPacket) error {
	ctxID, err := uuid.NewV4()
	if err != nil {
		return errors.Wrap(err, "get new uuid error")
	}
	ctx := context.WithValue(context.Background(), logging.ContextIDKey, ctxID)

	if s.dedupTTL > 0 {
		acquired, err := acquireDedupLock(ctx, s.stationID, pkt.PHYPayload, s.dedupTTL)
		if err != nil {
			return err
		}
		if !acquired {
			uplinkFrameDroppedCounter("duplicate").Inc()
			log.WithFields(log.Fields{
				"ctx_id": ctxID,
			}).Debug("uplink: duplicate frame dropped")
			return nil
		}
	}

	f, err := s.decoder.Decode(pkt.PHYPayload)
	if err != nil {
		switch errors.Cause(err) {
		case frame.ErrFilteredJoinEUI, frame.ErrFilteredNetID:
			uplinkFrameDroppedCounter("filtered").Inc()
			log.WithFields(log.Fields{
				"ctx_id": ctxID,
			}).WithError(err).Debug("uplink: frame dropped by admission filter")
			return nil
		default:
			return errors.Wrap(err, "decode frame error")
		}
	}

	// only uplink frame classes travel to the network server
	switch f.Kind {
	case frame.Updf, frame.Jreq, frame.Propdf, frame.Rejoin:
	default:
		uplinkFrameDroppedCounter("class").Inc()
		log.WithFields(log.Fields{
			"ctx_id":  ctxID,
			"msgtype": f.Kind.String(),
		}).Debug("uplink: non-uplink frame class dropped")
		return nil
	}

	plan := band.GetPlan()
	if plan.UplinkRPS(pkt.RXInfo.DR) == band.RPSIllegal {
		uplinkFrameDroppedCounter("dr").Inc()
		log.WithFields(log.Fields{
			"ctx_id": ctxID,
			"dr":     pkt.RXInfo.DR,
			"freq":   pkt.RXInfo.Freq,
		}).Warning("uplink: illegal data-rate index, frame dropped")
		return nil
	}

	b, err := s.codec.MarshalUplink(f, pkt.RXInfo, 0)
	if err != nil {
		return errors.Wrap(err, "marshal uplink error")
	}

	if err := backend.GetBackend().PublishUplink(b); err != nil {
		return errors.Wrap(err, "publish uplink error")
	}

	if err := framelog.LogUplinkFrame(ctx, s.stationID, framelog.UplinkFrameLog{
		PHYPayload: pkt.PHYPayload,
		RXInfo:     pkt.RXInfo,
		MsgType:    f.Kind.String(),
	}); err != nil {
		log.WithFields(log.Fields{
			"ctx_id": ctxID,
		}).WithError(err).Error("uplink: log frame error")
	}

	uplinkFrameCounter(f.Kind.String()).Inc()
	log.WithFields(log.Fields{
		"ctx_id":  ctxID,
		"msgtype": f.Kind.String(),
		"dr":      pkt.RXInfo.DR,
		"freq":    pkt.RXInfo.Freq,
		"rssi":    pkt.RXInfo.RSSI,
	}).Info("uplink: frame published")

	return nil
}

// versionMessage is the station announcement published once at start.
// Features advertises the compact binary protocol capability.
type versionMessage struct {
	MsgType  string `json:"msgtype"`
	Station  string `json:"station"`
	Firmware string `json:"firmware"`
	Protocol int    `json:"protocol"`
	Features string `json:"features"`
}

// announceVersion publishes the version message. The announcement is
// always text JSON, the binary protocol starts only after the capability
// has been advertised.
func (s *Server) announceVersion() error {
	msg := versionMessage{
		MsgType:  "version",
		Station:  s.stationID,
		Firmware: config.Version,
		Protocol: 2,
		Features: "gps lbs-dp",
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal version message error")
	}

	if err := backend.GetBackend().PublishUplink(b); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"station":         s.stationID,
		"features":        msg.Features,
		"protocol_format": s.format,
	}).Info("uplink: version announced")
	return nil
}

// acquireDedupLock sets the deduplication lock for a frame. It returns
// false when the lock is already held, meaning another radio path
// delivered the same frame within the lock TTL.
func acquireDedupLock(ctx context.Context, stationID string, phy []byte, ttl time.Duration) (bool, error) {
	sum := sha256.Sum256(phy)
	key := storage.GetRedisKey(dedupLockKeyTempl, stationID, hex.EncodeToString(sum[:]))

	set, err := storage.RedisClient().SetNX(ctx, key, "lock", ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "acquire deduplication lock error")
	}
	return set, nil
}
