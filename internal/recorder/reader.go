package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"main/internal/schema"

	"github.com/yanun0323/errors"
)

var ErrChecksumMismatch = errors.New("journal checksum mismatch")

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes journal records sequentially.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	symbol    []byte
	payload   []byte
}

// NewReader wraps an io.Reader with journal decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next event and its journal sequence number.
func (r *Reader) Next() (schema.RawEvent, uint64, error) {
	n, err := io.ReadFull(r.r, r.headerBuf)
	if err != nil {
		if err == io.EOF && n == 0 {
			return schema.RawEvent{}, 0, io.EOF
		}
		return schema.RawEvent{}, 0, err
	}

	header, err := decodeRecordHeader(r.headerBuf)
	if err != nil {
		return schema.RawEvent{}, 0, err
	}
	if r.opts.MaxPayloadSize > 0 && header.PayloadLen > uint32(r.opts.MaxPayloadSize) {
		return schema.RawEvent{}, 0, ErrPayloadTooLarge
	}

	r.symbol = grow(r.symbol, header.SymbolLen)
	if header.SymbolLen > 0 {
		if _, err := io.ReadFull(r.r, r.symbol); err != nil {
			return schema.RawEvent{}, 0, err
		}
	}
	r.payload = grow(r.payload, int(header.PayloadLen))
	if header.PayloadLen > 0 {
		if _, err := io.ReadFull(r.r, r.payload); err != nil {
			return schema.RawEvent{}, 0, err
		}
	}

	var checksumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, checksumBuf[:]); err != nil {
		return schema.RawEvent{}, 0, err
	}
	if !r.opts.DisableChecksum {
		expected := binary.LittleEndian.Uint32(checksumBuf[:])
		if checksum(r.headerBuf, r.symbol, r.payload) != expected {
			return schema.RawEvent{}, 0, ErrChecksumMismatch
		}
	}

	payload, err := unmarshalPayload(header.Type, r.payload)
	if err != nil {
		return schema.RawEvent{}, 0, err
	}
	ev := schema.RawEvent{
		TsMs:    header.TsMs,
		Symbol:  string(r.symbol),
		Type:    header.Type,
		Payload: payload,
	}
	return ev, header.Seq, nil
}

func grow(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}
