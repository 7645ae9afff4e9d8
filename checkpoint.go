package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gorgonia.org/tensor"
)

// ===========================================================================
// Checkpoint format
// ===========================================================================
//
// The whole file is a snappy framed stream containing:
//   1. Header length (uint32, little endian)
//   2. Header (JSON): architecture, model config, epoch, parameter shapes
//   3. All parameter data in header order (float64, little endian)
//
// A checkpoint is written once and never replaced: saving onto an existing
// path fails with ErrCheckpointExists.
// ===========================================================================

// CheckpointExt is the checkpoint file extension.
const CheckpointExt = ".ckpt"

// CheckpointHeader describes the tensors that follow it.
type CheckpointHeader struct {
	Architecture string        `json:"architecture"`
	Model        ModelConfig   `json:"model"`
	Epoch        int           `json:"epoch"`
	Params       []ParamHeader `json:"params"`
}

// ParamHeader names one stored tensor.
type ParamHeader struct {
	Name  string `json:"name"`
	Shape []int  `json:"shape"`
}

// Checkpoint is a loaded checkpoint.
type Checkpoint struct {
	Header CheckpointHeader
	Params map[string]*tensor.Dense
}

// CheckpointPath returns <root>/<folder>/<model>_epoch<N>.ckpt.
func CheckpointPath(root, folder, model string, epoch int) string {
	return filepath.Join(root, folder, fmt.Sprintf("%s_epoch%d%s", model, epoch, CheckpointExt))
}

// SaveCheckpoint writes the model parameters for epoch to path and returns
// the number of bytes written.
func SaveCheckpoint(fs afero.Fs, path string, model *SiameseModel, cfg ModelConfig, epoch int) (n int64, err error) {
	if ok, err := afero.Exists(fs, path); err != nil {
		return 0, errors.Wrapf(err, "checking %s", path)
	} else if ok {
		return 0, errors.Wrapf(ErrCheckpointExists, "%s", path)
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}

	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return 0, errors.Wrapf(ErrCheckpointExists, "%s", path)
		}
		return 0, errors.Wrapf(err, "creating %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", path)
		}
		if err != nil {
			// Leave no partial checkpoint behind.
			_ = fs.Remove(path)
			return
		}
		if info, serr := fs.Stat(path); serr == nil {
			n = info.Size()
		}
	}()

	header := CheckpointHeader{
		Architecture: model.Architecture().String(),
		Model:        cfg,
		Epoch:        epoch,
	}
	for _, p := range model.Params().All() {
		header.Params = append(header.Params, ParamHeader{Name: p.name, Shape: p.Shape()})
	}

	w := snappy.NewBufferedWriter(f)
	if err := writeCheckpoint(w, header, model.Params()); err != nil {
		return 0, errors.Wrapf(err, "writing %s", path)
	}
	if err := w.Close(); err != nil {
		return 0, errors.Wrapf(err, "flushing %s", path)
	}
	return 0, nil
}

func writeCheckpoint(w io.Writer, header CheckpointHeader, params *ParamSet) error {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "marshaling header")
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(headerJSON))); err != nil {
		return errors.Wrap(err, "writing header length")
	}
	if _, err := w.Write(headerJSON); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, ph := range header.Params {
		if err := binary.Write(w, binary.LittleEndian, params.Get(ph.Name).Data()); err != nil {
			return errors.Wrapf(err, "writing %s", ph.Name)
		}
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint.
func LoadCheckpoint(fs afero.Fs, path string) (*Checkpoint, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	r := snappy.NewReader(f)

	var headerLen uint32
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, errors.Wrapf(err, "reading header length of %s", path)
	}
	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, errors.Wrapf(err, "reading header of %s", path)
	}
	ckpt := &Checkpoint{Params: make(map[string]*tensor.Dense)}
	if err := json.Unmarshal(headerJSON, &ckpt.Header); err != nil {
		return nil, errors.Wrapf(err, "parsing header of %s", path)
	}

	for _, ph := range ckpt.Header.Params {
		size := 1
		for _, d := range ph.Shape {
			size *= d
		}
		data := make([]float64, size)
		if err := binary.Read(r, binary.LittleEndian, data); err != nil {
			return nil, errors.Wrapf(err, "reading %s from %s", ph.Name, path)
		}
		ckpt.Params[ph.Name] = tensor.New(tensor.WithShape(ph.Shape...), tensor.WithBacking(data))
	}
	return ckpt, nil
}

// Restore loads every parameter of the model from the checkpoint.
func (c *Checkpoint) Restore(model *SiameseModel) error {
	if c.Header.Architecture != model.Architecture().String() {
		return errors.Errorf("checkpoint is %q, model is %q", c.Header.Architecture, model.Architecture())
	}
	if len(c.Params) != len(model.Params().All()) {
		return errors.Errorf("checkpoint has %d parameters, model has %d", len(c.Params), len(model.Params().All()))
	}
	return model.Params().CopyFrom(c.Params, "")
}

// RestoreEncoder loads only the shared encoder weights, rejecting a
// checkpoint whose embedding width differs from the model's.
func (c *Checkpoint) RestoreEncoder(model *SiameseModel) error {
	if c.Header.Model.EmbedDim != model.Spec().EmbeddingWidth {
		return errors.Wrapf(ErrWidthMismatch, "pretrained encoder width %d, %s expects %d",
			c.Header.Model.EmbedDim, model.Architecture(), model.Spec().EmbeddingWidth)
	}
	return model.Params().CopyFrom(c.Params, "encoder.")
}
