package serialization

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/born-ml/localattn/internal/tensor"
)

const metadataKey = "__metadata__"

// TensorMeta describes one tensor in the SafeTensors header.
type TensorMeta struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// File is the content of a SafeTensors file.
type File struct {
	Tensors  map[string]*tensor.RawTensor
	Metadata map[string]string
}

// WriteFile writes tensors and metadata to path.
func WriteFile(path string, f File) error {
	//nolint:gosec // G304: the path is chosen by the user
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	if err := Write(out, f); err != nil {
		_ = out.Close()
		return errors.WithMessagef(err, "writing %q", path)
	}
	return out.Close()
}

// Write encodes f to w. Tensors are written in alphabetical order by name.
func Write(w io.Writer, f File) error {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		if name == "" || name == metadataKey {
			return errors.Wrapf(ErrInvalidTensorName, "%q", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]any, len(names)+1)
	if len(f.Metadata) > 0 {
		header[metadataKey] = f.Metadata
	}
	var offset int64
	for _, name := range names {
		raw := f.Tensors[name]
		dtype, ok := dtypeToSafeTensors(raw.DType())
		if !ok {
			return errors.Wrapf(ErrUnsupportedDType, "tensor %q has dtype %s", name, raw.DType())
		}
		shape := make([]int64, raw.Shape().Rank())
		for i, dim := range raw.Shape() {
			shape[i] = int64(dim)
		}
		size := int64(raw.ByteSize())
		header[name] = TensorMeta{DType: dtype, Shape: shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "failed to marshal header")
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return errors.Wrap(err, "failed to write header size")
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	for _, name := range names {
		if _, err := bw.Write(f.Tensors[name].Data()); err != nil {
			return errors.Wrapf(err, "failed to write tensor %s", name)
		}
	}
	return bw.Flush()
}

// ReadFile reads a SafeTensors file into CPU tensors.
func ReadFile(path string) (File, error) {
	//nolint:gosec // G304: the path is chosen by the user
	in, err := os.Open(path)
	if err != nil {
		return File{}, errors.Wrap(err, "failed to open file")
	}
	defer func() { _ = in.Close() }()

	f, err := Read(bufio.NewReader(in))
	if err != nil {
		return File{}, errors.WithMessagef(err, "reading %q", path)
	}
	return f, nil
}

// Read decodes a SafeTensors stream. Every tensor entry is validated against
// the data section before any data is read.
func Read(r io.Reader) (File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return File{}, errors.Wrap(err, "failed to read header size")
	}
	if headerSize > MaxHeaderSize {
		return File{}, errors.Wrapf(ErrHeaderTooLarge, "%d bytes", headerSize)
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return File{}, errors.Wrap(err, "failed to read header")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(headerJSON, &entries); err != nil {
		return File{}, errors.Wrap(err, "failed to parse header JSON")
	}
	if len(entries) > MaxTensorCount+1 {
		return File{}, errors.Wrapf(ErrTooManyTensors, "got %d, max %d", len(entries), MaxTensorCount)
	}

	f := File{Tensors: make(map[string]*tensor.RawTensor, len(entries))}
	metas := make(map[string]TensorMeta, len(entries))
	for name, entry := range entries {
		if name == metadataKey {
			if err := json.Unmarshal(entry, &f.Metadata); err != nil {
				return File{}, errors.Wrap(err, "failed to parse metadata")
			}
			continue
		}
		var meta TensorMeta
		if err := json.Unmarshal(entry, &meta); err != nil {
			return File{}, errors.Wrapf(err, "failed to parse tensor %q", name)
		}
		metas[name] = meta
	}

	names, err := validateOffsets(metas)
	if err != nil {
		return File{}, err
	}

	// Tensors are laid out by offset and validateOffsets returns them in
	// that order, so the data section is consumed sequentially.
	var pos int64
	for _, name := range names {
		meta := metas[name]
		raw, err := newTensor(name, meta)
		if err != nil {
			return File{}, err
		}
		if skip := meta.DataOffsets[0] - pos; skip > 0 {
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return File{}, errors.Wrapf(err, "failed to skip to tensor %s", name)
			}
		}
		if _, err := io.ReadFull(r, raw.Data()); err != nil {
			return File{}, errors.Wrapf(err, "failed to read tensor %s", name)
		}
		pos = meta.DataOffsets[1]
		f.Tensors[name] = raw
	}
	return f, nil
}

// validateOffsets checks for negative, overlapping and size-inconsistent
// byte ranges and returns the tensor names sorted by offset.
func validateOffsets(metas map[string]TensorMeta) ([]string, error) {
	names := make([]string, 0, len(metas))
	for name := range metas {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return metas[names[i]].DataOffsets[0] < metas[names[j]].DataOffsets[0]
	})

	var end int64
	prev := ""
	for _, name := range names {
		begin, stop := metas[name].DataOffsets[0], metas[name].DataOffsets[1]
		if begin < 0 || stop < begin {
			return nil, &ValidationError{
				Type:    "negative_offset",
				Tensor:  name,
				Details: fmt.Sprintf("data_offsets [%d, %d]", begin, stop),
			}
		}
		if begin < end {
			return nil, &ValidationError{
				Type:    "offset_overlap",
				Tensor:  prev,
				Tensor2: name,
				Details: fmt.Sprintf("regions end at %d and begin at %d", end, begin),
			}
		}
		end, prev = stop, name
	}
	return names, nil
}

func newTensor(name string, meta TensorMeta) (*tensor.RawTensor, error) {
	dtype, ok := dtypeFromSafeTensors(meta.DType)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedDType, "tensor %q has dtype %s", name, meta.DType)
	}
	shape := make(tensor.Shape, len(meta.Shape))
	for i, dim := range meta.Shape {
		shape[i] = int(dim)
	}
	if err := shape.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid shape for tensor %s", name)
	}
	if want := int64(shape.NumElements() * dtype.Size()); meta.DataOffsets[1]-meta.DataOffsets[0] != want {
		return nil, &ValidationError{
			Type:    "size_mismatch",
			Tensor:  name,
			Details: fmt.Sprintf("shape %v needs %d bytes, data_offsets span %d", shape, want, meta.DataOffsets[1]-meta.DataOffsets[0]),
		}
	}
	return tensor.NewRaw(shape, dtype, tensor.CPU)
}

func dtypeToSafeTensors(dt tensor.DataType) (string, bool) {
	switch dt {
	case tensor.Float32:
		return "F32", true
	case tensor.Float64:
		return "F64", true
	case tensor.Int32:
		return "I32", true
	case tensor.Int64:
		return "I64", true
	default:
		return "", false
	}
}

func dtypeFromSafeTensors(s string) (tensor.DataType, bool) {
	switch s {
	case "F32":
		return tensor.Float32, true
	case "F64":
		return tensor.Float64, true
	case "I32":
		return tensor.Int32, true
	case "I64":
		return tensor.Int64, true
	default:
		return 0, false
	}
}
