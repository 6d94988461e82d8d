package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version       int    `json:"version"`
	WorldID       string `json:"world_id"`
	Seed          int64  `json:"seed"`
	Profile       string `json:"profile,omitempty"`
	CatalogDigest string `json:"catalog_digest"`
	Structures    int    `json:"structures"`
	Failed        int    `json:"failed"`
}

// SnapshotV1 is one world session's generation cache. Template ids in
// Structures only resolve against the catalog named by Header.CatalogDigest.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Params     ParamsV1      `json:"params"`
	Structures []StructureV1 `json:"structures"`
	Failed     []FailedV1    `json:"failed,omitempty"`
}

type ParamsV1 struct {
	ChunkRadius         int     `json:"chunk_radius"`
	StartWeight         float64 `json:"start_weight"`
	BranchChance        float64 `json:"branch_chance"`
	DrainWidth          int     `json:"drain_width"`
	SourceCutoffWidth   int     `json:"source_cutoff_width"`
	SourceMaxWidth      int     `json:"source_max_width"`
	BranchDecreaseWidth int     `json:"branch_decrease_width"`
	SealMargin          float64 `json:"seal_margin"`
	SeaLevel            int     `json:"sea_level"`
	DrainSiteAttempts   int     `json:"drain_site_attempts"`
	RequireUphill       bool    `json:"require_uphill"`
}

type StructureV1 struct {
	CX       int       `json:"cx"`
	CZ       int       `json:"cz"`
	Radius   float64   `json:"radius"`
	Pieces   []PieceV1 `json:"pieces"`
	Branches [][]int   `json:"branches"`
}

type PieceV1 struct {
	Template int     `json:"template"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Surface  int     `json:"surface"`
	X        float64 `json:"x"`
	Z        float64 `json:"z"`
	Down     int     `json:"down"`
}

type FailedV1 struct {
	CX     int    `json:"cx"`
	CZ     int    `json:"cz"`
	Reason string `json:"reason"`
}

// WriteSnapshot stores a JSON header line followed by the gob-encoded
// snapshot, all zstd compressed. The file is written to a temp name and
// renamed into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func encode(f *os.File, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header json: %w", err)
	}
	return h, nil
}
