package tuya

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Command is a Tuya frame command code.
type Command uint32

// CommandControl sets data points on the device.
const CommandControl Command = 7

// String returns the command name.
func (c Command) String() string {
	if c == CommandControl {
		return "CONTROL"
	}
	return fmt.Sprintf("Command(%d)", uint32(c))
}

const (
	framePrefix uint32 = 0x000055AA
	frameSuffix uint32 = 0x0000AA55

	// headerSize is prefix, sequence, command and length.
	headerSize = 16

	// trailerSize is CRC and suffix.
	trailerSize = 8

	// maxFrameLength bounds the length field accepted from the wire.
	maxFrameLength = 64 * 1024
)

// Frame is one decoded protocol message.
type Frame struct {
	Sequence uint32
	Command  Command
	Payload  []byte
}

// EncodeFrame serialises a frame and appends its CRC.
func EncodeFrame(f Frame) []byte {
	buf := make([]byte, headerSize+len(f.Payload)+trailerSize)

	binary.BigEndian.PutUint32(buf[0:4], framePrefix)
	binary.BigEndian.PutUint32(buf[4:8], f.Sequence)
	binary.BigEndian.PutUint32(buf[8:12], uint32(f.Command))
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(f.Payload)+trailerSize))
	copy(buf[headerSize:], f.Payload)

	crcAt := headerSize + len(f.Payload)
	binary.BigEndian.PutUint32(buf[crcAt:crcAt+4], crc32.ChecksumIEEE(buf[:crcAt]))
	binary.BigEndian.PutUint32(buf[crcAt+4:], frameSuffix)

	return buf
}

// DecodeFrame parses one frame from the start of data and returns the number
// of bytes consumed. It verifies prefix, suffix and CRC.
func DecodeFrame(data []byte) (Frame, int, error) {
	if len(data) < headerSize+trailerSize {
		return Frame{}, 0, fmt.Errorf("%w: short frame (%d bytes)", ErrInvalidFrame, len(data))
	}
	if binary.BigEndian.Uint32(data[0:4]) != framePrefix {
		return Frame{}, 0, fmt.Errorf("%w: bad prefix", ErrInvalidFrame)
	}

	length := int(binary.BigEndian.Uint32(data[12:16]))
	if length < trailerSize || length > maxFrameLength {
		return Frame{}, 0, fmt.Errorf("%w: length %d", ErrInvalidFrame, length)
	}
	total := headerSize + length
	if len(data) < total {
		return Frame{}, 0, fmt.Errorf("%w: truncated (have %d, need %d)", ErrInvalidFrame, len(data), total)
	}

	crcAt := total - trailerSize
	if binary.BigEndian.Uint32(data[total-4:total]) != frameSuffix {
		return Frame{}, 0, fmt.Errorf("%w: bad suffix", ErrInvalidFrame)
	}
	if got, want := binary.BigEndian.Uint32(data[crcAt:crcAt+4]), crc32.ChecksumIEEE(data[:crcAt]); got != want {
		return Frame{}, 0, fmt.Errorf("%w: crc %08x, want %08x", ErrInvalidFrame, got, want)
	}

	payload := make([]byte, crcAt-headerSize)
	copy(payload, data[headerSize:crcAt])

	return Frame{
		Sequence: binary.BigEndian.Uint32(data[4:8]),
		Command:  Command(binary.BigEndian.Uint32(data[8:12])),
		Payload:  payload,
	}, total, nil
}

// FrameLength reports the total size of the frame whose 16 byte header is
// given. It is used by stream readers to know how much more to read.
func FrameLength(header []byte) (int, error) {
	if len(header) < headerSize {
		return 0, fmt.Errorf("%w: short header", ErrInvalidFrame)
	}
	if binary.BigEndian.Uint32(header[0:4]) != framePrefix {
		return 0, fmt.Errorf("%w: bad prefix", ErrInvalidFrame)
	}
	length := int(binary.BigEndian.Uint32(header[12:16]))
	if length < trailerSize || length > maxFrameLength {
		return 0, fmt.Errorf("%w: length %d", ErrInvalidFrame, length)
	}
	return headerSize + length, nil
}
