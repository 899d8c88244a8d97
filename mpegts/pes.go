package mpegts

import "fmt"

// NoTimestamp marks an absent PTS or DTS on a Unit.
const NoTimestamp int64 = -1

type pesInfo struct {
	pts  int64
	dts  int64
	data []byte
}

func isPESStart(payload []byte) bool {
	return len(payload) >= 3 && payload[0] == 0x00 && payload[1] == 0x00 && payload[2] == 0x01
}

// parsePES extracts the PTS/DTS and elementary payload from a reassembled
// PES packet. Stream IDs without an optional header are not expected on
// audio/video PIDs and are rejected.
func parsePES(payload []byte) (pesInfo, error) {
	info := pesInfo{pts: NoTimestamp, dts: NoTimestamp}
	if len(payload) < 9 {
		return info, fmt.Errorf("mpegts: PES packet too short (%d bytes)", len(payload))
	}
	if !isPESStart(payload) {
		return info, fmt.Errorf("mpegts: invalid PES start code")
	}

	ptsDTSIndicator := payload[7] >> 6 & 0x03
	headerDataLength := int(payload[8])

	switch ptsDTSIndicator {
	case 2: // PTS only
		if len(payload) >= 14 {
			info.pts = parseTimestamp(payload[9:14])
		}
	case 3: // PTS + DTS
		if len(payload) >= 19 {
			info.pts = parseTimestamp(payload[9:14])
			info.dts = parseTimestamp(payload[14:19])
		}
	}

	dataStart := 9 + headerDataLength
	if dataStart > len(payload) {
		dataStart = len(payload)
	}
	info.data = payload[dataStart:]
	return info, nil
}

// parseTimestamp extracts a 33-bit 90 kHz timestamp from 5 PES header bytes.
func parseTimestamp(bs []byte) int64 {
	return int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)
}
