package limiter

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Persisted state layout: a two-byte header (algorithm tag, format
// version) followed by the algorithm's fixed little-endian payload.
// The header exists so that bytes written by one algorithm are rejected,
// not silently reinterpreted, when a key is reused under another
// algorithm or a future layout change.
const (
	tagFixedWindow   byte = 0x01
	tagSlidingWindow byte = 0x02
	tagTokenBucket   byte = 0x03
	tagLeakyBucket   byte = 0x04

	codecVersion byte = 0x01
	headerSize        = 2
)

// Payload sizes after the header, in bytes.
const (
	fixedWindowPayload   = 12 // u64 window_start | u32 count
	slidingWindowPayload = 16 // u64 window_start | u32 current | u32 previous
	tokenBucketPayload   = 16 // f64 tokens | u64 last_refill
	leakyBucketPayload   = 16 // f64 level | u64 last_leak
)

func appendHeader(buf []byte, tag byte) []byte {
	return append(buf, tag, codecVersion)
}

// checkHeader validates length, algorithm tag and version, and returns
// the payload slice.
func checkHeader(value []byte, tag byte, payloadSize int) ([]byte, error) {
	if len(value) != headerSize+payloadSize {
		return nil, malformedValue(fmt.Errorf("state is %d bytes, want %d", len(value), headerSize+payloadSize))
	}
	if value[0] != tag {
		return nil, malformedValue(fmt.Errorf("state carries algorithm tag 0x%02x, want 0x%02x", value[0], tag))
	}
	if value[1] != codecVersion {
		return nil, malformedValue(fmt.Errorf("unsupported state format version %d", value[1]))
	}
	return value[headerSize:], nil
}

func encodeFixedWindow(inst FixedWindowInstance) []byte {
	buf := make([]byte, 0, headerSize+fixedWindowPayload)
	buf = appendHeader(buf, tagFixedWindow)
	buf = binary.LittleEndian.AppendUint64(buf, inst.WindowStart)
	buf = binary.LittleEndian.AppendUint32(buf, inst.Count)
	return buf
}

func decodeFixedWindow(value []byte) (FixedWindowInstance, error) {
	payload, err := checkHeader(value, tagFixedWindow, fixedWindowPayload)
	if err != nil {
		return FixedWindowInstance{}, err
	}
	return FixedWindowInstance{
		WindowStart: binary.LittleEndian.Uint64(payload),
		Count:       binary.LittleEndian.Uint32(payload[8:]),
	}, nil
}

func encodeSlidingWindow(inst SlidingWindowInstance) []byte {
	buf := make([]byte, 0, headerSize+slidingWindowPayload)
	buf = appendHeader(buf, tagSlidingWindow)
	buf = binary.LittleEndian.AppendUint64(buf, inst.WindowStart)
	buf = binary.LittleEndian.AppendUint32(buf, inst.CurrentCount)
	buf = binary.LittleEndian.AppendUint32(buf, inst.PreviousCount)
	return buf
}

func decodeSlidingWindow(value []byte) (SlidingWindowInstance, error) {
	payload, err := checkHeader(value, tagSlidingWindow, slidingWindowPayload)
	if err != nil {
		return SlidingWindowInstance{}, err
	}
	return SlidingWindowInstance{
		WindowStart:   binary.LittleEndian.Uint64(payload),
		CurrentCount:  binary.LittleEndian.Uint32(payload[8:]),
		PreviousCount: binary.LittleEndian.Uint32(payload[12:]),
	}, nil
}

func encodeTokenBucket(inst TokenBucketInstance) []byte {
	buf := make([]byte, 0, headerSize+tokenBucketPayload)
	buf = appendHeader(buf, tagTokenBucket)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(inst.Tokens))
	buf = binary.LittleEndian.AppendUint64(buf, inst.LastRefill)
	return buf
}

func decodeTokenBucket(value []byte) (TokenBucketInstance, error) {
	payload, err := checkHeader(value, tagTokenBucket, tokenBucketPayload)
	if err != nil {
		return TokenBucketInstance{}, err
	}
	return TokenBucketInstance{
		Tokens:     math.Float64frombits(binary.LittleEndian.Uint64(payload)),
		LastRefill: binary.LittleEndian.Uint64(payload[8:]),
	}, nil
}

func encodeLeakyBucket(inst LeakyBucketInstance) []byte {
	buf := make([]byte, 0, headerSize+leakyBucketPayload)
	buf = appendHeader(buf, tagLeakyBucket)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(inst.Level))
	buf = binary.LittleEndian.AppendUint64(buf, inst.LastLeak)
	return buf
}

func decodeLeakyBucket(value []byte) (LeakyBucketInstance, error) {
	payload, err := checkHeader(value, tagLeakyBucket, leakyBucketPayload)
	if err != nil {
		return LeakyBucketInstance{}, err
	}
	return LeakyBucketInstance{
		Level:    math.Float64frombits(binary.LittleEndian.Uint64(payload)),
		LastLeak: binary.LittleEndian.Uint64(payload[8:]),
	}, nil
}
