package IO

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// VecExt is the extension of persisted vectorized corpora.
const VecExt = "vec"

var vecMagic = [4]byte{'V', 'E', 'C', '1'}

// WriteVectorized persists an ordered list of id sequences:
//
//   - 4-byte magic "VEC1"
//   - uint64 sequence count
//   - per sequence: uint32 length, then int32 ids
//
// all little-endian.
func WriteVectorized(path string, seqs [][]int) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "can't create %q", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	if err := writeVectorized(w, seqs); err != nil {
		return errors.Wrapf(err, "can't write %q", path)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "can't write %q", path)
	}
	return f.Close()
}

func writeVectorized(w io.Writer, seqs [][]int) error {
	if _, err := w.Write(vecMagic[:]); err != nil {
		return err
	}
	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf8, uint64(len(seqs)))
	if _, err := w.Write(buf8); err != nil {
		return err
	}
	for _, seq := range seqs {
		binary.LittleEndian.PutUint32(buf4, uint32(len(seq)))
		if _, err := w.Write(buf4); err != nil {
			return err
		}
		for _, id := range seq {
			binary.LittleEndian.PutUint32(buf4, uint32(int32(id)))
			if _, err := w.Write(buf4); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadVectorized loads a file written by WriteVectorized.
func ReadVectorized(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %q", path)
	}
	defer f.Close()
	seqs, err := readVectorized(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "can't read %q", path)
	}
	return seqs, nil
}

func readVectorized(r io.Reader) ([][]int, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != vecMagic {
		return nil, errors.Errorf("bad magic %q", magic[:])
	}
	buf4 := make([]byte, 4)
	buf8 := make([]byte, 8)
	if _, err := io.ReadFull(r, buf8); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(buf8)
	seqs := make([][]int, 0, min(n, 1<<20))
	for i := uint64(0); i < n; i++ {
		if _, err := io.ReadFull(r, buf4); err != nil {
			return nil, errors.Wrapf(err, "sequence %d", i)
		}
		seq := make([]int, binary.LittleEndian.Uint32(buf4))
		for j := range seq {
			if _, err := io.ReadFull(r, buf4); err != nil {
				return nil, errors.Wrapf(err, "sequence %d", i)
			}
			seq[j] = int(int32(binary.LittleEndian.Uint32(buf4)))
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}
