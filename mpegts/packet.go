// Package mpegts implements the minimal MPEG-TS demuxing the SRT ingest
// producer needs: PAT/PMT discovery, per-PID PES reassembly with PTS/DTS
// extraction, and access to the raw transport packets composing each unit
// so recordings can pass the original stream bytes through untouched.
package mpegts

import "fmt"

// PacketSize is the fixed MPEG-TS transport packet size.
const PacketSize = 188

const syncByte = 0x47

type packet struct {
	pid           uint16
	cc            uint8
	pusi          bool
	hasPayload    bool
	discontinuity bool
	randomAccess  bool
	payload       []byte
	raw           []byte
}

func parsePacket(buf []byte) (packet, error) {
	if len(buf) != PacketSize {
		return packet{}, fmt.Errorf("mpegts: packet size %d, expected %d", len(buf), PacketSize)
	}
	if buf[0] != syncByte {
		return packet{}, fmt.Errorf("mpegts: invalid sync byte 0x%02X", buf[0])
	}

	p := packet{
		pid:        uint16(buf[1]&0x1F)<<8 | uint16(buf[2]),
		cc:         buf[3] & 0x0F,
		pusi:       buf[1]&0x40 != 0,
		hasPayload: buf[3]&0x10 != 0,
	}
	if buf[1]&0x80 != 0 {
		return packet{}, fmt.Errorf("mpegts: transport error on PID %d", p.pid)
	}

	p.raw = make([]byte, PacketSize)
	copy(p.raw, buf)

	offset := 4
	if buf[3]&0x20 != 0 { // adaptation field
		afLen := int(buf[offset])
		if afLen > 0 && offset+1 < PacketSize {
			flags := buf[offset+1]
			p.discontinuity = flags&0x80 != 0
			p.randomAccess = flags&0x40 != 0
		}
		offset += 1 + afLen
		if offset > PacketSize {
			offset = PacketSize
		}
	}

	if p.hasPayload && offset < PacketSize {
		p.payload = p.raw[offset:]
	}
	return p, nil
}
