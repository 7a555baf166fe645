package vecindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"cinegraph/backend/pkg/errors"
)

// File format: cinegraph flat index v2
// Header: magic(8) + version(4) + dims(4) + count(4) + build id length(4) + build id
// Body: count * dims little-endian float32

const (
	magic         = "CGFLAT01"
	formatVersion = 2
	maxBuildIDLen = 256
)

// Save persists the index to a binary file
func (x *Index) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write([]byte(magic)); err != nil {
		return err
	}
	for _, v := range []uint32{formatVersion, uint32(x.dims), uint32(x.Len()), uint32(len(x.build))} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.WriteString(x.build); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, v := range x.data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// LoadIndex restores an index written by Save
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewMissingArtifact("vector index", path)
		}
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return nil, errors.NewArtifactMismatch("vector index header unreadable: " + err.Error())
	}
	if string(magicBuf) != magic {
		return nil, errors.NewArtifactMismatch(fmt.Sprintf("vector index has invalid magic %q", string(magicBuf)))
	}

	var header [4]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.NewArtifactMismatch("vector index header truncated")
	}
	version, dims, count, idLen := header[0], header[1], header[2], header[3]
	if version != formatVersion {
		return nil, errors.NewArtifactMismatch(fmt.Sprintf("unsupported vector index version %d", version))
	}
	if idLen > maxBuildIDLen {
		return nil, errors.NewArtifactMismatch(fmt.Sprintf("vector index build id length %d is too large", idLen))
	}
	build := make([]byte, idLen)
	if _, err := io.ReadFull(r, build); err != nil {
		return nil, errors.NewArtifactMismatch("vector index build id truncated")
	}

	x := &Index{dims: int(dims), data: make([]float32, int(dims)*int(count)), build: string(build)}
	buf := make([]byte, 4)
	for i := range x.data {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.NewArtifactMismatch(fmt.Sprintf("vector index truncated at value %d of %d", i, len(x.data)))
		}
		x.data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
	}
	return x, nil
}
