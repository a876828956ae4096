package legacy

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/encoding/unicode"
)

const (
	// PacketServerListPing is the first request byte (0xFE) followed by PingPayload.
	PacketServerListPing byte = 0xFE

	// PingPayload asks 1.4+ servers for the NUL separated status string.
	PingPayload byte = 0x01

	// PacketKick is the response id; servers answer the ping with a kick packet.
	PacketKick byte = 0xFF

	sectionSign = 0x00A7
	fieldSep    = "\x00"
	minFields   = 6

	// detailLimit caps how much of an unexpected response ends up in an error.
	detailLimit = 64
)

// Request is the full outbound payload.
var Request = []byte{PacketServerListPing, PingPayload}

// Status is the decoded server status.
type Status struct {
	// MOTD is the message of the day, formatting codes left intact.
	MOTD string `json:"motd"`

	// Protocol and Version are passed through without validation.
	Protocol string `json:"protocol,omitempty"`
	Version  string `json:"version,omitempty"`

	Players    int `json:"players"`
	MaxPlayers int `json:"max_players"`
}

// Decode reads one status response from r.
// I/O errors other than end of stream are returned unwrapped.
func Decode(r io.Reader) (*Status, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		b := bufio.NewReaderSize(r, 512)
		r, br = b, b
	}

	id, err := br.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, protocolErr(ErrInvalidPacketID, "end of stream")
		}
		return nil, err
	}
	if id != PacketKick {
		return nil, protocolErr(ErrInvalidPacketID, "0x%02X", id)
	}

	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, protocolErr(ErrInvalidLength, "end of stream")
		}
		return nil, err
	}
	if length == 0 {
		return nil, protocolErr(ErrInvalidLength, "%d", length)
	}

	units := make([]uint16, length)
	if err := binary.Read(r, binary.BigEndian, units); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &ProtocolError{Err: ErrPrematureEOF, Detail: fmt.Sprintf("want %d code units", length)}
		}
		return nil, err
	}

	text := string(utf16.Decode(units))
	if units[0] != sectionSign {
		return nil, protocolErr(ErrUnexpectedResponse, "%q", truncate(text, detailLimit))
	}

	return parseFields(text)
}

func parseFields(text string) (*Status, error) {
	fields := strings.Split(text, fieldSep)
	if len(fields) < minFields {
		return nil, protocolErr(ErrMalformedFields, "got %d fields, want at least %d", len(fields), minFields)
	}

	players, err := parseCount(fields[4])
	if err != nil {
		return nil, protocolErr(ErrMalformedFields, "online players %q", fields[4])
	}
	maxPlayers, err := parseCount(fields[5])
	if err != nil {
		return nil, protocolErr(ErrMalformedFields, "max players %q", fields[5])
	}

	return &Status{
		Protocol:   fields[1],
		Version:    fields[2],
		MOTD:       fields[3],
		Players:    players,
		MaxPlayers: maxPlayers,
	}, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return int(n), nil
}

// Encode builds the response frame a 1.4+ server sends for s.
// The status string is truncated at 0xFFFF code units.
func Encode(s Status) ([]byte, error) {
	payload := strings.Join([]string{
		"§1",
		s.Protocol,
		s.Version,
		s.MOTD,
		strconv.Itoa(s.Players),
		strconv.Itoa(s.MaxPlayers),
	}, fieldSep)

	return EncodeRaw(payload)
}

// EncodeRaw frames an arbitrary status string. Useful to produce responses
// a real server would never send.
func EncodeRaw(payload string) ([]byte, error) {
	enc := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	body, err := enc.Bytes([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("encode status string: %w", err)
	}

	units := len(body) / 2
	if units > 0xFFFF {
		units = 0xFFFF
		// do not split a surrogate pair
		if last := binary.BigEndian.Uint16(body[(units-1)*2:]); last >= 0xD800 && last < 0xDC00 {
			units--
		}
		body = body[:units*2]
	}

	frame := make([]byte, 0, 3+len(body))
	frame = append(frame, PacketKick)
	frame = binary.BigEndian.AppendUint16(frame, uint16(units))
	frame = append(frame, body...)

	return frame, nil
}

// StripFormatting removes "§x" formatting codes from a MOTD.
func StripFormatting(s string) string {
	if !strings.ContainsRune(s, sectionSign) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	skip := false
	for _, r := range s {
		switch {
		case skip:
			skip = false
		case r == sectionSign:
			skip = true
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
