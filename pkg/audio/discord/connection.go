// Package discord bridges Discord voice channels, via bwmarrin/discordgo,
// onto the PCM pipeline. A Connection demuxes incoming Opus packets by
// SSRC, decodes them, and feeds tagged frames to a FrameSink; its Device
// side encodes outgoing PCM back to Opus at the 20 ms cadence Discord
// expects.
//
// The caller owns the *discordgo.Session; one Connection corresponds to
// one joined voice channel.
package discord

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nvoss/parley/pkg/audio"
)

// FrameSink receives decoded PCM frames from the voice channel. The
// listening monitor implements it. Observe must not block.
type FrameSink interface {
	Observe(frame audio.Frame)
}

// Connection is an active voice channel membership. Safe for concurrent
// use.
type Connection struct {
	vc      *discordgo.VoiceConnection
	session *discordgo.Session
	guildID string
	sink    FrameSink
	log     *slog.Logger

	ssrcMu   sync.RWMutex
	ssrcUser map[uint32]string

	done      chan struct{}
	closeOnce sync.Once

	// disconnectVC tears down the voice connection during Close.
	// Defaults to vc.Disconnect; overridden in tests.
	disconnectVC func() error

	device *Device
}

// Join connects to the voice channel and starts delivering decoded frames
// to sink. logger may be nil.
func Join(session *discordgo.Session, guildID, channelID string, sink FrameSink, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	vc, err := session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	c := &Connection{
		vc:           vc,
		session:      session,
		guildID:      guildID,
		sink:         sink,
		log:          logger,
		ssrcUser:     make(map[uint32]string),
		done:         make(chan struct{}),
		disconnectVC: vc.Disconnect,
	}
	c.device = newDevice(c)

	// Speaking updates carry the SSRC-to-user mapping.
	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		c.ssrcMu.Lock()
		c.ssrcUser[uint32(su.SSRC)] = su.UserID
		c.ssrcMu.Unlock()
	})

	go c.recvLoop()
	return c, nil
}

// Device returns the playback device side of this connection.
func (c *Connection) Device() *Device { return c.device }

// ChannelID returns the joined voice channel's ID.
func (c *Connection) ChannelID() string { return c.vc.ChannelID }

// Close stops the receive loop, playback, and leaves the voice channel.
// Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.device.Stop()
		if c.disconnectVC != nil {
			err = c.disconnectVC()
		}
	})
	return err
}

// recvLoop reads Opus packets from Discord, demuxes by SSRC, decodes to
// PCM, and hands frames to the sink.
func (c *Connection) recvLoop() {
	// Each SSRC gets its own decoder to maintain state across frames.
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-c.vc.OpusRecv:
			if !ok {
				return
			}
			if pkt == nil {
				continue
			}

			dec, exists := decoders[pkt.SSRC]
			if !exists {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					c.log.Error("failed to create opus decoder",
						slog.Uint64("ssrc", uint64(pkt.SSRC)),
						slog.String("error", err.Error()))
					continue
				}
				decoders[pkt.SSRC] = dec
			}

			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				c.log.Warn("opus decode error",
					slog.Uint64("ssrc", uint64(pkt.SSRC)),
					slog.String("error", err.Error()))
				continue
			}

			c.sink.Observe(audio.Frame{
				Data:       pcm,
				SampleRate: opusSampleRate,
				Channels:   opusChannels,
				SpeakerID:  c.speakerID(pkt.SSRC),
				ReceivedAt: time.Now(),
			})
		}
	}
}

// speakerID resolves an SSRC to a Discord user ID, falling back to the
// SSRC itself until a speaking update has supplied the mapping.
func (c *Connection) speakerID(ssrc uint32) string {
	c.ssrcMu.RLock()
	defer c.ssrcMu.RUnlock()
	if id, ok := c.ssrcUser[ssrc]; ok {
		return id
	}
	return strconv.FormatUint(uint64(ssrc), 10)
}

// setSpeaking notifies Discord of output activity, logging failures.
func (c *Connection) setSpeaking(b bool) {
	if err := c.vc.Speaking(b); err != nil {
		c.log.Warn("speaking notification error",
			slog.Bool("speaking", b), slog.String("error", err.Error()))
	}
}
