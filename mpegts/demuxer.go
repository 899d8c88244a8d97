package mpegts

import (
	"errors"
	"io"
)

// Unit is one reassembled elementary stream access unit: the PES payload
// plus the original transport packets that carried it, so consumers can
// pass the untouched stream bytes through to a recording.
type Unit struct {
	PID  uint16
	Type StreamType

	// PTS and DTS are 90 kHz clock values, NoTimestamp when absent.
	PTS int64
	DTS int64

	// RandomAccess is the adaptation field random access indicator of the
	// unit's first packet, a cheap keyframe signal for video streams.
	RandomAccess bool

	// Payload is the elementary stream payload after the PES header.
	Payload []byte

	// Raw is the concatenation of the original 188-byte transport packets
	// composing this unit.
	Raw []byte
}

// Demuxer reads transport packets from a reader and produces Units for
// the elementary streams announced by the stream's PAT and PMT.
type Demuxer struct {
	r       io.Reader
	buf     [PacketSize]byte
	pmtPIDs map[uint16]bool
	streams map[uint16]StreamType
	acc     map[uint16][]packet
	ready   []*Unit
	eof     bool

	patRaw []byte
	pmtRaw []byte
}

// NewDemuxer creates a Demuxer reading from r.
func NewDemuxer(r io.Reader) *Demuxer {
	return &Demuxer{
		r:       r,
		pmtPIDs: make(map[uint16]bool),
		streams: make(map[uint16]StreamType),
		acc:     make(map[uint16][]packet),
	}
}

// InitSection returns the raw transport packets of the most recent PAT
// and PMT, suitable as an initialization payload ahead of recorded media
// packets. Nil until both tables have been seen.
func (d *Demuxer) InitSection() []byte {
	if d.patRaw == nil || d.pmtRaw == nil {
		return nil
	}
	out := make([]byte, 0, len(d.patRaw)+len(d.pmtRaw))
	out = append(out, d.patRaw...)
	out = append(out, d.pmtRaw...)
	return out
}

// Streams returns the elementary stream types discovered so far, keyed by
// PID. Empty until the PMT has been seen.
func (d *Demuxer) Streams() map[uint16]StreamType {
	out := make(map[uint16]StreamType, len(d.streams))
	for pid, st := range d.streams {
		out[pid] = st
	}
	return out
}

// NextUnit returns the next reassembled unit, or io.EOF once the stream
// is exhausted. Corrupt packets and sections are skipped, not surfaced.
func (d *Demuxer) NextUnit() (*Unit, error) {
	for {
		if len(d.ready) > 0 {
			u := d.ready[0]
			d.ready = d.ready[1:]
			return u, nil
		}
		if d.eof {
			return nil, io.EOF
		}

		if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				d.flushAll()
				continue
			}
			return nil, err
		}

		pkt, err := parsePacket(d.buf[:])
		if err != nil || !pkt.hasPayload {
			continue
		}
		d.ingest(pkt)
	}
}

func (d *Demuxer) ingest(pkt packet) {
	switch {
	case pkt.pid == pidPAT:
		if pkt.pusi {
			d.handlePAT(pkt)
		}
	case d.pmtPIDs[pkt.pid]:
		if pkt.pusi {
			d.handlePMT(pkt)
		}
	default:
		st, known := d.streams[pkt.pid]
		if !known {
			return
		}
		if pkt.pusi {
			d.flushPID(pkt.pid, st)
		}
		d.acc[pkt.pid] = append(d.acc[pkt.pid], pkt)
	}
}

func (d *Demuxer) handlePAT(pkt packet) {
	tableID, sec, err := section(pkt.payload)
	if err != nil || tableID != tableIDPAT {
		return
	}
	pids, err := parsePAT(sec)
	if err != nil {
		return
	}
	for _, pid := range pids {
		d.pmtPIDs[pid] = true
	}
	d.patRaw = pkt.raw
}

func (d *Demuxer) handlePMT(pkt packet) {
	tableID, sec, err := section(pkt.payload)
	if err != nil || tableID != tableIDPMT {
		return
	}
	streams, err := parsePMT(sec)
	if err != nil {
		return
	}
	for _, es := range streams {
		if es.streamType.Video() || es.streamType.Audio() {
			d.streams[es.pid] = es.streamType
		}
	}
	d.pmtRaw = pkt.raw
}

// flushPID reassembles the accumulated packets of one PID into a Unit.
func (d *Demuxer) flushPID(pid uint16, st StreamType) {
	packets := d.acc[pid]
	if len(packets) == 0 {
		return
	}
	d.acc[pid] = nil

	var payload, raw []byte
	for _, p := range packets {
		payload = append(payload, p.payload...)
		raw = append(raw, p.raw...)
	}
	if !isPESStart(payload) {
		return
	}
	info, err := parsePES(payload)
	if err != nil {
		return
	}

	d.ready = append(d.ready, &Unit{
		PID:          pid,
		Type:         st,
		PTS:          info.pts,
		DTS:          info.dts,
		RandomAccess: packets[0].randomAccess,
		Payload:      info.data,
		Raw:          raw,
	})
}

func (d *Demuxer) flushAll() {
	for pid, st := range d.streams {
		d.flushPID(pid, st)
	}
}
