package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the fixed size of the canonical RIFF/WAVE header written
// by EncodeWAV: RIFF chunk descriptor, fmt sub-chunk, data sub-chunk header.
const wavHeaderSize = 44

// EncodeWAV wraps little-endian int16 PCM in a minimal RIFF/WAVE container.
// This is the hand-off format for the transcription engine and for the voice
// conversion collaborator's file interface.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], bitsPerSample)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out
}

// DecodeWAV extracts int16 PCM and its format from a RIFF/WAVE byte slice.
// Only uncompressed 16-bit PCM is accepted; that is the only format the
// synthesis and conversion collaborators produce.
func DecodeWAV(b []byte) (pcm []byte, format Format, err error) {
	if len(b) < wavHeaderSize {
		return nil, Format{}, errors.New("audio: wav too short")
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, Format{}, errors.New("audio: not a RIFF/WAVE container")
	}
	if audioFormat := binary.LittleEndian.Uint16(b[20:22]); audioFormat != 1 {
		return nil, Format{}, fmt.Errorf("audio: unsupported wav format %d (want PCM)", audioFormat)
	}
	if bits := binary.LittleEndian.Uint16(b[34:36]); bits != 16 {
		return nil, Format{}, fmt.Errorf("audio: unsupported wav bit depth %d (want 16)", bits)
	}

	format = Format{
		SampleRate: int(binary.LittleEndian.Uint32(b[24:28])),
		Channels:   int(binary.LittleEndian.Uint16(b[22:24])),
	}

	// Walk sub-chunks from offset 12 to find "data"; some encoders insert
	// LIST or fact chunks before it.
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		if id == "data" {
			end := off + 8 + size
			if end > len(b) {
				end = len(b)
			}
			return b[off+8 : end], format, nil
		}
		off += 8 + size
		if size%2 == 1 {
			off++ // chunks are word-aligned
		}
	}
	return nil, Format{}, errors.New("audio: wav data chunk not found")
}
