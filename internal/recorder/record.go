// Package recorder journals raw events to append-only segment files so
// a session can be replayed bit-for-bit through the pipeline later.
package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"

	"main/internal/schema"

	"github.com/yanun0323/errors"
)

const (
	recordVersion      uint16 = 1
	recordHeaderSize          = 32
	recordChecksumSize        = 4
	maxSymbolLen              = int(^uint16(0))
)

var (
	recordMagic = [4]byte{'O', 'B', 'S', '1'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("journal invalid magic")
	ErrUnsupportedRecordVer    = errors.New("journal unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("journal invalid header size")
	ErrSymbolTooLong           = errors.New("journal symbol too long")
	ErrUnknownEventType        = errors.New("journal unknown event type")
)

func encodeHeader(dst []byte, ev schema.RawEvent, seq uint64, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], uint16(recordHeaderSize))
	binary.LittleEndian.PutUint16(dst[8:10], uint16(ev.Type))
	binary.LittleEndian.PutUint16(dst[10:12], uint16(len(ev.Symbol)))
	binary.LittleEndian.PutUint32(dst[12:16], uint32(payloadLen))
	binary.LittleEndian.PutUint64(dst[16:24], seq)
	binary.LittleEndian.PutUint64(dst[24:32], uint64(ev.TsMs))
}

type recordHeader struct {
	Type       schema.EventType
	SymbolLen  int
	PayloadLen uint32
	Seq        uint64
	TsMs       int64
}

func decodeRecordHeader(src []byte) (recordHeader, error) {
	if len(src) < recordHeaderSize {
		return recordHeader{}, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return recordHeader{}, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return recordHeader{}, ErrUnsupportedRecordVer
	}
	if headerSize := binary.LittleEndian.Uint16(src[6:8]); headerSize != recordHeaderSize {
		return recordHeader{}, ErrInvalidRecordHeaderSize
	}
	return recordHeader{
		Type:       schema.EventType(binary.LittleEndian.Uint16(src[8:10])),
		SymbolLen:  int(binary.LittleEndian.Uint16(src[10:12])),
		PayloadLen: binary.LittleEndian.Uint32(src[12:16]),
		Seq:        binary.LittleEndian.Uint64(src[16:24]),
		TsMs:       int64(binary.LittleEndian.Uint64(src[24:32])),
	}, nil
}

func checksum(header, symbol, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	crc = crc32.Update(crc, crcTable, symbol)
	return crc32.Update(crc, crcTable, payload)
}

// marshalPayload serializes the typed payload of an event.
func marshalPayload(ev schema.RawEvent) ([]byte, error) {
	if ev.Payload == nil {
		return nil, nil
	}
	return json.Marshal(ev.Payload)
}

// unmarshalPayload rebuilds the typed payload from journal bytes. The
// switch mirrors the event type enum so replayed events dispatch the
// same way live ones did.
func unmarshalPayload(t schema.EventType, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	switch t {
	case schema.EventTrade:
		var p schema.TradePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventLiquidation:
		var p schema.LiquidationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventKline:
		var p schema.KlinePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventOpenInterest:
		var p schema.OIPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventDepth:
		var p schema.DepthPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventHLPrice:
		var p schema.HLPricePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventHLLiquidation:
		var p schema.HLLiquidationPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventHLPosition:
		var p schema.HLPositionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case schema.EventHLOrder:
		var p schema.HLOrderPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, ErrUnknownEventType
	}
}
