//nolint:mnd // section layouts of ISO/IEC 13818-1 2.4.4
package mpegts

import (
	"errors"

	"github.com/ugparu/gomux/utils/bits/pio"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

var (
	errCRC          = errors.New("mpegts: section CRC mismatch")
	errShortSection = errors.New("mpegts: section too short")
)

type elementaryStream struct {
	pid        uint16
	streamType uint8
}

// sectionBuffer reassembles one PSI section that may span several packets.
type sectionBuffer struct {
	buf     []byte
	started bool
}

// add appends a packet payload and returns a complete section, if any.
func (sb *sectionBuffer) add(pusi bool, payload []byte) []byte {
	if pusi {
		if len(payload) == 0 || 1+int(payload[0]) > len(payload) {
			sb.started = false
			return nil
		}
		sb.buf = append(sb.buf[:0], payload[1+int(payload[0]):]...)
		sb.started = true
	} else if sb.started {
		sb.buf = append(sb.buf, payload...)
	} else {
		return nil
	}

	if len(sb.buf) < 3 {
		return nil
	}
	if sb.buf[0] == 0xff {
		sb.started = false
		return nil
	}
	n := 3 + int(pio.U16BE(sb.buf[1:])&0x0fff)
	if len(sb.buf) < n {
		return nil
	}
	sb.started = false
	return sb.buf[:n]
}

// checkSection verifies the syntax indicator and the CRC of a long section.
func checkSection(section []byte, minLen int) error {
	if len(section) < minLen {
		return errShortSection
	}
	if section[1]&0x80 == 0 {
		return errors.New("mpegts: section syntax indicator not set")
	}
	if crc32(section) != 0 {
		return errCRC
	}
	return nil
}

// parsePAT returns the PMT PIDs of all programs.
func parsePAT(section []byte) (pmtPIDs []uint16, err error) {
	if err = checkSection(section, 12); err != nil {
		return nil, err
	}
	for i := 8; i+4 <= len(section)-4; i += 4 {
		program := pio.U16BE(section[i:])
		if program == 0 {
			// network PID
			continue
		}
		pmtPIDs = append(pmtPIDs, pio.U16BE(section[i+2:])&0x1fff)
	}
	return pmtPIDs, nil
}

func parsePMT(section []byte) (streams []elementaryStream, err error) {
	if err = checkSection(section, 16); err != nil {
		return nil, err
	}
	end := len(section) - 4
	offset := 12 + int(pio.U16BE(section[10:])&0x0fff)
	for offset+5 <= end {
		streams = append(streams, elementaryStream{
			streamType: section[offset],
			pid:        pio.U16BE(section[offset+1:]) & 0x1fff,
		})
		offset += 5 + int(pio.U16BE(section[offset+3:])&0x0fff)
	}
	return streams, nil
}
