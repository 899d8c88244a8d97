package mpegts

import "fmt"

const (
	pidPAT     = 0x0000
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

// StreamType is the PMT elementary stream type.
type StreamType uint8

// Stream types carried through to ingest consumers.
const (
	StreamTypeADTSAAC StreamType = 0x0F
	StreamTypeH264    StreamType = 0x1B
	StreamTypeH265    StreamType = 0x24
)

// Video reports whether the stream type is a supported video codec.
func (t StreamType) Video() bool {
	return t == StreamTypeH264 || t == StreamTypeH265
}

// Audio reports whether the stream type is a supported audio codec.
func (t StreamType) Audio() bool {
	return t == StreamTypeADTSAAC
}

// MPEG-2 CRC32 with polynomial 0x04C11DB7, covering PSI sections.
var crcTable [256]uint32

func init() {
	for i := range crcTable {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x8000_0000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

func verifyCRC32(section []byte) error {
	crc := uint32(0xFFFF_FFFF)
	for _, b := range section {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	if crc != 0 {
		return fmt.Errorf("mpegts: PSI CRC mismatch")
	}
	return nil
}

// section extracts the first PSI section from a reassembled PSI payload,
// returning the table ID and the full section bytes including CRC.
func section(payload []byte) (uint8, []byte, error) {
	if len(payload) < 1 {
		return 0, nil, fmt.Errorf("mpegts: PSI payload too short")
	}
	offset := 1 + int(payload[0]) // pointer field
	if offset+3 > len(payload) {
		return 0, nil, fmt.Errorf("mpegts: PSI pointer field out of range")
	}
	tableID := payload[offset]
	if payload[offset+1]&0x80 == 0 {
		return 0, nil, fmt.Errorf("mpegts: PSI section syntax indicator clear")
	}
	length := int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2])
	end := offset + 3 + length
	if end > len(payload) {
		return 0, nil, fmt.Errorf("mpegts: PSI section truncated")
	}
	return tableID, payload[offset:end], nil
}

// parsePAT returns the PMT PIDs announced by a PAT section.
func parsePAT(sec []byte) ([]uint16, error) {
	if err := verifyCRC32(sec); err != nil {
		return nil, fmt.Errorf("PAT: %w", err)
	}
	if len(sec) < 12 {
		return nil, fmt.Errorf("mpegts: PAT section too short")
	}
	var pids []uint16
	// Program entries sit between the 8-byte header and the 4-byte CRC.
	for off := 8; off+4 <= len(sec)-4; off += 4 {
		programNumber := uint16(sec[off])<<8 | uint16(sec[off+1])
		pid := uint16(sec[off+2]&0x1F)<<8 | uint16(sec[off+3])
		if programNumber != 0 { // 0 is the network PID
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// elementaryStream is one PMT entry.
type elementaryStream struct {
	pid        uint16
	streamType StreamType
}

// parsePMT returns the elementary streams announced by a PMT section.
func parsePMT(sec []byte) ([]elementaryStream, error) {
	if err := verifyCRC32(sec); err != nil {
		return nil, fmt.Errorf("PMT: %w", err)
	}
	if len(sec) < 16 {
		return nil, fmt.Errorf("mpegts: PMT section too short")
	}
	programInfoLength := int(sec[10]&0x0F)<<8 | int(sec[11])
	off := 12 + programInfoLength

	var streams []elementaryStream
	for off+5 <= len(sec)-4 {
		st := StreamType(sec[off])
		pid := uint16(sec[off+1]&0x1F)<<8 | uint16(sec[off+2])
		esInfoLength := int(sec[off+3]&0x0F)<<8 | int(sec[off+4])
		streams = append(streams, elementaryStream{pid: pid, streamType: st})
		off += 5 + esInfoLength
	}
	return streams, nil
}
