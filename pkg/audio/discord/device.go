package discord

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Device plays PCM clips into the voice channel. It implements the
// playback device contract: one clip at a time, Stop cuts the current
// clip, and the finish callback fires exactly once per clip whether the
// clip completed or was stopped.
//
// Clips must be 48 kHz stereo PCM16; the caller resamples beforehand.
// Frames are paced on a 20 ms ticker because Discord drops audio that
// arrives faster than real time.
type Device struct {
	conn *Connection

	mu      sync.Mutex
	playing bool
	cancel  chan struct{}
}

func newDevice(conn *Connection) *Device {
	return &Device{conn: conn}
}

// Play starts streaming pcm and returns immediately. onFinished is called
// from the streaming goroutine when the clip ends or is stopped.
func (d *Device) Play(pcm []byte, onFinished func()) error {
	if len(pcm) == 0 {
		return errors.New("discord: empty clip")
	}

	d.mu.Lock()
	if d.playing {
		d.mu.Unlock()
		return errors.New("discord: device busy")
	}
	cancel := make(chan struct{})
	d.playing = true
	d.cancel = cancel
	d.mu.Unlock()

	go d.stream(pcm, cancel, onFinished)
	return nil
}

// Stop cuts the current clip. No-op when idle.
func (d *Device) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		close(cancel)
	}
}

// IsPlaying reports whether a clip is being streamed.
func (d *Device) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

func (d *Device) stream(pcm []byte, cancel chan struct{}, onFinished func()) {
	defer func() {
		d.mu.Lock()
		d.playing = false
		if d.cancel == cancel {
			d.cancel = nil
		}
		d.mu.Unlock()
		d.conn.setSpeaking(false)
		if onFinished != nil {
			onFinished()
		}
	}()

	enc, err := newOpusEncoder()
	if err != nil {
		d.conn.log.Error("failed to create opus encoder", slog.String("error", err.Error()))
		return
	}
	d.conn.setSpeaking(true)

	// Pad the tail to a whole frame so the last samples are not dropped.
	if rem := len(pcm) % opusFrameBytes; rem != 0 {
		pcm = append(pcm, make([]byte, opusFrameBytes-rem)...)
	}

	ticker := time.NewTicker(opusFrameSizeMs * time.Millisecond)
	defer ticker.Stop()

	for off := 0; off < len(pcm); off += opusFrameBytes {
		opus, err := enc.encode(pcm[off : off+opusFrameBytes])
		if err != nil {
			d.conn.log.Warn("opus encode error", slog.String("error", err.Error()))
			continue
		}
		select {
		case <-cancel:
			return
		case <-d.conn.done:
			return
		case <-ticker.C:
		}
		select {
		case d.conn.vc.OpusSend <- opus:
		case <-cancel:
			return
		case <-d.conn.done:
			return
		}
	}
}
