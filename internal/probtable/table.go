package probtable

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/raceforge/lane-derby-go/internal/race"
)

// Shard artifact layout, all big-endian:
//
//	magic "LDPT" | version u8 | lanes u8 | minBps u16 | speedRange u16 |
//	trackLength u32 | maxTicks u32 | startIndex u32 | entryCount u32 |
//	entryCount * lanes * u16 basis points
//
// The header pins every simulation parameter the probabilities were computed
// under; readers refuse a shard whose parameters disagree with the runtime
// config.
const (
	formatVersion = 1
	headerSize    = 4 + 1 + 1 + 2 + 2 + 4 + 4 + 4 + 4
)

var shardMagic = [4]byte{'L', 'D', 'P', 'T'}

// zstdMagic is the standard zstd frame header, used to sniff compressed
// shard files.
var zstdMagic = [4]byte{0x28, 0xb5, 0x2f, 0xfd}

// ShardHeader describes one packed shard artifact.
type ShardHeader struct {
	Lanes          int
	MinHandicapBps int
	SpeedRange     int
	TrackLength    int
	MaxTicks       int
	StartIndex     int
	EntryCount     int
}

// HeaderFor builds a shard header from the runtime config.
func HeaderFor(cfg race.Config, startIndex, entryCount int) ShardHeader {
	return ShardHeader{
		Lanes:          cfg.Lanes,
		MinHandicapBps: cfg.MinHandicapBps,
		SpeedRange:     cfg.SpeedRange,
		TrackLength:    cfg.TrackLength,
		MaxTicks:       cfg.MaxTicks,
		StartIndex:     startIndex,
		EntryCount:     entryCount,
	}
}

// CheckConfig verifies the shard was generated under the given runtime
// parameters.
func (h ShardHeader) CheckConfig(cfg race.Config) error {
	if h.Lanes != cfg.Lanes || h.MinHandicapBps != cfg.MinHandicapBps ||
		h.SpeedRange != cfg.SpeedRange || h.TrackLength != cfg.TrackLength ||
		h.MaxTicks != cfg.MaxTicks {
		return fmt.Errorf("probtable: shard generated under lanes=%d minBps=%d speed=%d track=%d ticks=%d, runtime wants lanes=%d minBps=%d speed=%d track=%d ticks=%d",
			h.Lanes, h.MinHandicapBps, h.SpeedRange, h.TrackLength, h.MaxTicks,
			cfg.Lanes, cfg.MinHandicapBps, cfg.SpeedRange, cfg.TrackLength, cfg.MaxTicks)
	}
	return nil
}

// EncodeShard packs a shard header and its entries.
func EncodeShard(header ShardHeader, entries [][]int) ([]byte, error) {
	if len(entries) != header.EntryCount {
		return nil, fmt.Errorf("probtable: header says %d entries, got %d", header.EntryCount, len(entries))
	}
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+header.EntryCount*header.Lanes*2))
	buf.Write(shardMagic[:])
	buf.WriteByte(formatVersion)
	buf.WriteByte(byte(header.Lanes))
	writeU16 := func(v int) {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], uint16(v))
		buf.Write(b[:])
	}
	writeU32 := func(v int) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	}
	writeU16(header.MinHandicapBps)
	writeU16(header.SpeedRange)
	writeU32(header.TrackLength)
	writeU32(header.MaxTicks)
	writeU32(header.StartIndex)
	writeU32(header.EntryCount)

	for i, entry := range entries {
		if len(entry) != header.Lanes {
			return nil, fmt.Errorf("probtable: entry %d has %d values, want %d", i, len(entry), header.Lanes)
		}
		for _, bps := range entry {
			if bps < 0 || bps > 10000 {
				return nil, fmt.Errorf("probtable: entry %d has basis points %d out of range", i, bps)
			}
			writeU16(bps)
		}
	}
	return buf.Bytes(), nil
}

// DecodeShard unpacks a shard artifact.
func DecodeShard(data []byte) (ShardHeader, [][]int, error) {
	var header ShardHeader
	if len(data) < headerSize {
		return header, nil, fmt.Errorf("probtable: shard truncated at %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], shardMagic[:]) {
		return header, nil, fmt.Errorf("probtable: bad shard magic %q", data[:4])
	}
	if data[4] != formatVersion {
		return header, nil, fmt.Errorf("probtable: unsupported shard format version %d", data[4])
	}
	header.Lanes = int(data[5])
	header.MinHandicapBps = int(binary.BigEndian.Uint16(data[6:8]))
	header.SpeedRange = int(binary.BigEndian.Uint16(data[8:10]))
	header.TrackLength = int(binary.BigEndian.Uint32(data[10:14]))
	header.MaxTicks = int(binary.BigEndian.Uint32(data[14:18]))
	header.StartIndex = int(binary.BigEndian.Uint32(data[18:22]))
	header.EntryCount = int(binary.BigEndian.Uint32(data[22:26]))

	want := headerSize + header.EntryCount*header.Lanes*2
	if len(data) != want {
		return header, nil, fmt.Errorf("probtable: shard size %d, want %d for %d entries", len(data), want, header.EntryCount)
	}

	entries := make([][]int, header.EntryCount)
	off := headerSize
	for i := range entries {
		entry := make([]int, header.Lanes)
		for lane := range entry {
			entry[lane] = int(binary.BigEndian.Uint16(data[off : off+2]))
			off += 2
		}
		entries[i] = entry
	}
	return header, entries, nil
}

// WriteShardFile writes a shard artifact, zstd-compressed when requested.
func WriteShardFile(path string, header ShardHeader, entries [][]int, compress bool) error {
	data, err := EncodeShard(header, entries)
	if err != nil {
		return err
	}
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("probtable: init zstd: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadShardFile reads a shard artifact, transparently decompressing zstd
// frames by magic sniff.
func ReadShardFile(path string) (ShardHeader, [][]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ShardHeader{}, nil, err
	}
	if len(data) >= 4 && bytes.Equal(data[:4], zstdMagic[:]) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return ShardHeader{}, nil, fmt.Errorf("probtable: init zstd: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return ShardHeader{}, nil, fmt.Errorf("probtable: decompress %s: %w", path, err)
		}
	}
	return DecodeShard(data)
}
