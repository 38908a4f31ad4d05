// Package snapshot captures and restores full contract state images.
//
// An image is a canonical little-endian byte encoding of the record table,
// free-list order, burn counter and config, followed by an xxhash64 digest
// of the canonical bytes. Two replicas are in sync exactly when their
// digests match. On disk and on the wire the image travels zstd-compressed;
// the digest is computed over the uncompressed canonical form so it is
// independent of compression settings.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/qugate/gate-node/contract"
)

var magic = [8]byte{'Q', 'G', 'S', 'N', 'A', 'P', '0', '1'}

const (
	headerSize = 64
	recordSize = contract.GateInfoSize + 8 + 256 // wire record + whitelist block
)

// ErrCorrupt is returned when an image fails magic or digest verification.
var ErrCorrupt = errors.New("snapshot image is corrupt")

// Snapshot is a decoded contract state image.
type Snapshot struct {
	Epoch   uint16
	Config  contract.Config
	Burned  uint64
	FreeIDs []uint64
	Gates   []contract.Gate
}

// Capture freezes the contract's current state into a snapshot. The caller
// must hold the executor's lock (see Executor.Freeze) while this runs.
func Capture(c *contract.Contract, epoch uint16) *Snapshot {
	count := c.GetCount()
	s := &Snapshot{
		Epoch:   epoch,
		Config:  c.Config(),
		Burned:  count.TotalBurned,
		FreeIDs: c.FreeIDs(),
		Gates:   make([]contract.Gate, 0, count.TotalGates),
	}
	c.ExportGates(func(g contract.Gate) {
		s.Gates = append(s.Gates, g)
	})
	return s
}

// Restore rebuilds a contract from the snapshot.
func (s *Snapshot) Restore(led contract.Ledger) (*contract.Contract, error) {
	return contract.Restore(s.Config, led, s.Gates, s.FreeIDs, s.Burned)
}

// Digest returns the xxhash64 of the canonical encoding. Replicas compare
// this value to detect divergence.
func (s *Snapshot) Digest() uint64 {
	return xxhash.Sum64(s.canonical())
}

func (s *Snapshot) canonical() []byte {
	size := headerSize + len(s.FreeIDs)*8 + len(s.Gates)*recordSize
	b := make([]byte, size)

	copy(b[0:8], magic[:])
	binary.LittleEndian.PutUint16(b[8:10], s.Epoch)
	binary.LittleEndian.PutUint64(b[16:24], s.Config.MaxGates)
	binary.LittleEndian.PutUint64(b[24:32], s.Config.BaseFee)
	binary.LittleEndian.PutUint64(b[32:40], s.Config.MinSend)
	binary.LittleEndian.PutUint64(b[40:48], s.Config.ExpiryEpochs)
	binary.LittleEndian.PutUint64(b[48:56], s.Burned)
	binary.LittleEndian.PutUint32(b[56:60], uint32(len(s.Gates)))
	binary.LittleEndian.PutUint32(b[60:64], uint32(len(s.FreeIDs)))

	off := headerSize
	for _, id := range s.FreeIDs {
		binary.LittleEndian.PutUint64(b[off:], id)
		off += 8
	}
	for i := range s.Gates {
		encodeRecord(b[off:off+recordSize], &s.Gates[i])
		off += recordSize
	}
	return b
}

func encodeRecord(dst []byte, g *contract.Gate) {
	info := contract.GateInfo{
		Mode:              g.Mode,
		RecipientCount:    g.RecipientCount,
		Active:            g.Active,
		Owner:             g.Owner,
		TotalReceived:     g.TotalReceived,
		TotalForwarded:    g.TotalForwarded,
		CurrentBalance:    g.CurrentBalance,
		Threshold:         g.Threshold,
		CreatedEpoch:      g.CreatedEpoch,
		LastActivityEpoch: g.LastActivityEpoch,
		Recipients:        g.Recipients,
		Ratios:            g.Ratios,
	}
	copy(dst, contract.MarshalGateInfo(info))
	dst[contract.GateInfoSize] = g.AllowedSenderCount
	off := contract.GateInfoSize + 8
	for i := 0; i < contract.MaxRecipients; i++ {
		copy(dst[off+i*32:], g.AllowedSenders[i][:])
	}
}

func decodeRecord(src []byte, id uint64) (contract.Gate, error) {
	info, err := contract.UnmarshalGateInfo(src[:contract.GateInfoSize])
	if err != nil {
		return contract.Gate{}, err
	}
	g := contract.Gate{
		ID:                id,
		Mode:              info.Mode,
		Active:            info.Active,
		Owner:             info.Owner,
		RecipientCount:    info.RecipientCount,
		Recipients:        info.Recipients,
		Ratios:            info.Ratios,
		Threshold:         info.Threshold,
		TotalReceived:     info.TotalReceived,
		TotalForwarded:    info.TotalForwarded,
		CurrentBalance:    info.CurrentBalance,
		CreatedEpoch:      info.CreatedEpoch,
		LastActivityEpoch: info.LastActivityEpoch,
	}
	g.AllowedSenderCount = src[contract.GateInfoSize]
	off := contract.GateInfoSize + 8
	for i := 0; i < contract.MaxRecipients; i++ {
		copy(g.AllowedSenders[i][:], src[off+i*32:off+(i+1)*32])
	}
	return g, nil
}

// WriteTo streams the zstd-compressed image, digest included, to w.
func (s *Snapshot) WriteTo(w io.Writer) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: init compressor: %w", err)
	}

	canon := s.canonical()
	var digest [8]byte
	binary.LittleEndian.PutUint64(digest[:], xxhash.Sum64(canon))

	if _, err := enc.Write(canon); err != nil {
		enc.Close()
		return fmt.Errorf("snapshot: write image: %w", err)
	}
	if _, err := enc.Write(digest[:]); err != nil {
		enc.Close()
		return fmt.Errorf("snapshot: write digest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("snapshot: flush: %w", err)
	}
	return nil
}

// ReadFrom decodes and verifies a compressed image produced by WriteTo.
func ReadFrom(r io.Reader) (*Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: init decompressor: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read image: %w", err)
	}
	if len(raw) < headerSize+8 {
		return nil, fmt.Errorf("snapshot: %w: truncated (%d bytes)", ErrCorrupt, len(raw))
	}

	canon, tail := raw[:len(raw)-8], raw[len(raw)-8:]
	if xxhash.Sum64(canon) != binary.LittleEndian.Uint64(tail) {
		return nil, fmt.Errorf("snapshot: %w: digest mismatch", ErrCorrupt)
	}
	if !bytes.Equal(canon[0:8], magic[:]) {
		return nil, fmt.Errorf("snapshot: %w: bad magic", ErrCorrupt)
	}

	s := &Snapshot{
		Epoch: binary.LittleEndian.Uint16(canon[8:10]),
		Config: contract.Config{
			MaxGates:     binary.LittleEndian.Uint64(canon[16:24]),
			BaseFee:      binary.LittleEndian.Uint64(canon[24:32]),
			MinSend:      binary.LittleEndian.Uint64(canon[32:40]),
			ExpiryEpochs: binary.LittleEndian.Uint64(canon[40:48]),
		},
		Burned: binary.LittleEndian.Uint64(canon[48:56]),
	}
	gateCount := binary.LittleEndian.Uint32(canon[56:60])
	freeCount := binary.LittleEndian.Uint32(canon[60:64])

	want := headerSize + int(freeCount)*8 + int(gateCount)*recordSize
	if len(canon) != want {
		return nil, fmt.Errorf("snapshot: %w: %d bytes, header implies %d", ErrCorrupt, len(canon), want)
	}

	off := headerSize
	s.FreeIDs = make([]uint64, freeCount)
	for i := range s.FreeIDs {
		s.FreeIDs[i] = binary.LittleEndian.Uint64(canon[off:])
		off += 8
	}
	s.Gates = make([]contract.Gate, gateCount)
	for i := range s.Gates {
		g, err := decodeRecord(canon[off:off+recordSize], uint64(i+1))
		if err != nil {
			return nil, fmt.Errorf("snapshot: record %d: %w", i+1, err)
		}
		s.Gates[i] = g
		off += recordSize
	}
	return s, nil
}
