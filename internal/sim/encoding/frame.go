package encoding

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const maxFrameDecoded = 16 << 20

var (
	zOnce sync.Once
	zEnc  *zstd.Encoder
	zDec  *zstd.Decoder
	zErr  error
)

// EncodeAll/DecodeAll are safe for concurrent use, so one pair is shared.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zOnce.Do(func() {
		zEnc, zErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zErr != nil {
			return
		}
		zDec, zErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameDecoded))
	})
	return zEnc, zDec, zErr
}

// EncodeFrame renders a payload as zstd-compressed JSON for binary transports.
func EncodeFrame(p CompactPayload) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	enc, _, err := codecs()
	if err != nil {
		return nil, err
	}
	return enc.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func DecodeFrame(frame []byte) (CompactPayload, error) {
	_, dec, err := codecs()
	if err != nil {
		return CompactPayload{}, err
	}
	raw, err := dec.DecodeAll(frame, nil)
	if err != nil {
		return CompactPayload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	var p CompactPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return CompactPayload{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return p, nil
}
