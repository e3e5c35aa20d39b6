package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const recordFormatVersionV1 = 1

// maxIDLen bounds the identifier stored inside an envelope.
const maxIDLen = 255

// expiryLen is the encoded size of the expiry: seconds then nanoseconds.
const expiryLen = 8 + 4

// EncodeRecord serializes r into the envelope stored in the data column:
//
//	byte    version
//	uvarint len(id), id
//	int64   expiry seconds since the unix epoch (big-endian)
//	uint32  expiry nanoseconds within the second (big-endian)
//	uvarint len(data), data
func EncodeRecord(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if r.ID == "" {
		return nil, errors.New("empty id")
	}
	if len(r.ID) > maxIDLen {
		return nil, fmt.Errorf("id too long (%d bytes)", len(r.ID))
	}
	if r.Expiry.IsZero() {
		return nil, errors.New("zero expiry")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 2*binary.MaxVarintLen64 + len(r.ID) + expiryLen + len(r.Data))
	buf.WriteByte(recordFormatVersionV1)

	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(r.ID)))
	buf.Write(lenBuf[:n])
	buf.WriteString(string(r.ID))

	var ts [expiryLen]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(r.Expiry.Unix()))
	binary.BigEndian.PutUint32(ts[8:], uint32(r.Expiry.Nanosecond()))
	buf.Write(ts[:])

	n = binary.PutUvarint(lenBuf[:], uint64(len(r.Data)))
	buf.Write(lenBuf[:n])
	buf.Write(r.Data)

	return buf.Bytes(), nil
}

// DecodeRecord parses an envelope produced by EncodeRecord.
func DecodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errors.New("empty payload")
	}
	if version != recordFormatVersionV1 {
		return nil, fmt.Errorf("unknown payload version %d", version)
	}

	idLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("read id length: %w", err)
	}
	if idLen == 0 || idLen > maxIDLen {
		return nil, fmt.Errorf("invalid id length %d", idLen)
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, errors.New("truncated payload")
	}

	var ts [expiryLen]byte
	if _, err := io.ReadFull(reader, ts[:]); err != nil {
		return nil, errors.New("truncated payload")
	}
	nsec := binary.BigEndian.Uint32(ts[8:])
	if nsec >= uint32(time.Second) {
		return nil, fmt.Errorf("invalid expiry nanoseconds %d", nsec)
	}
	expiry := time.Unix(int64(binary.BigEndian.Uint64(ts[:8])), int64(nsec)).UTC()

	dataLen, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("read data length: %w", err)
	}
	if dataLen > uint64(reader.Len()) {
		return nil, errors.New("truncated payload")
	}
	payload := make([]byte, dataLen)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, errors.New("truncated payload")
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes", reader.Len())
	}

	return &Record{ID: ID(id), Data: payload, Expiry: expiry}, nil
}
