package model

import (
	"bytes"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type tensorData struct {
	Name string
	R, C int
	Data []float64
}

type checkpointData struct {
	Tensors []tensorData
}

// SaveCheckpoint writes m's state dict with gob. The file appears only once
// it is complete.
func SaveCheckpoint(path string, m Model) error {
	data := checkpointData{}
	for _, n := range m.StateDict() {
		r, c := n.Tensor.Dims()
		raw := mat.DenseCopyOf(n.Tensor).RawMatrix()
		data.Tensors = append(data.Tensors, tensorData{Name: n.Name, R: r, C: c, Data: raw.Data})
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(data); err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".chk-*")
	if err != nil {
		return errors.Wrap(err, "creating checkpoint")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing checkpoint %q", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "writing checkpoint %q", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "writing checkpoint %q", path)
}

// LoadCheckpoint copies a saved state dict into m. Names and shapes must match.
func LoadCheckpoint(path string, m Model) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "reading checkpoint")
	}
	data := checkpointData{}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return errors.Wrapf(err, "decoding checkpoint %q", path)
	}
	state := m.StateDict()
	if len(state) != len(data.Tensors) {
		return errors.Errorf("checkpoint %q has %d tensors, model has %d", path, len(data.Tensors), len(state))
	}
	for i, n := range state {
		td := data.Tensors[i]
		r, c := n.Tensor.Dims()
		if td.Name != n.Name || td.R != r || td.C != c || len(td.Data) != r*c {
			return errors.Errorf("checkpoint %q: tensor %q %dx%d does not fit %q %dx%d", path, td.Name, td.R, td.C, n.Name, r, c)
		}
		n.Tensor.Copy(mat.NewDense(r, c, td.Data))
	}
	return nil
}
