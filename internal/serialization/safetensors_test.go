package serialization

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/localattn/internal/tensor"
)

func TestWriteRead_File(t *testing.T) {
	q, err := tensor.FromFloat32([]float32{1, -2, 3.5, 4, 5, 6}, tensor.Shape{1, 1, 3, 2}, tensor.CPU)
	require.NoError(t, err)
	lengths, err := tensor.FromInt64([]int64{3}, tensor.Shape{1}, tensor.CPU)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "problem.safetensors")
	require.NoError(t, WriteFile(path, File{
		Tensors:  map[string]*tensor.RawTensor{"q": q, "key_lengths": lengths},
		Metadata: map[string]string{"window": "2"},
	}))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"window": "2"}, f.Metadata)
	require.Len(t, f.Tensors, 2)
	assert.Equal(t, tensor.Shape{1, 1, 3, 2}, f.Tensors["q"].Shape())
	assert.Equal(t, q.AsFloat32(), f.Tensors["q"].AsFloat32())
	assert.Equal(t, tensor.Int64, f.Tensors["key_lengths"].DType())
	assert.Equal(t, []int64{3}, f.Tensors["key_lengths"].AsInt64())
}

func TestWrite_HeaderLayout(t *testing.T) {
	a, _ := tensor.FromFloat32([]float32{1}, tensor.Shape{1}, tensor.CPU)
	b, _ := tensor.FromFloat32([]float32{2, 3}, tensor.Shape{2}, tensor.CPU)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, File{Tensors: map[string]*tensor.RawTensor{"b": b, "a": a}}))

	data := buf.Bytes()
	size := binary.LittleEndian.Uint64(data[:8])
	header := string(data[8 : 8+size])
	assert.Contains(t, header, `"a":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}`)
	assert.Contains(t, header, `"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}`)
	assert.NotContains(t, header, metadataKey)
	assert.Len(t, data, 8+int(size)+12)
}

func TestWrite_InvalidName(t *testing.T) {
	a, _ := tensor.FromFloat32([]float32{1}, tensor.Shape{1}, tensor.CPU)
	err := Write(&bytes.Buffer{}, File{Tensors: map[string]*tensor.RawTensor{metadataKey: a}})
	assert.True(t, errors.Is(err, ErrInvalidTensorName), "got %v", err)
}

func encode(t *testing.T, header string, data []byte) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(len(header))))
	buf.WriteString(header)
	buf.Write(data)
	return bytes.NewReader(buf.Bytes())
}

func TestRead_Malformed(t *testing.T) {
	data := make([]byte, 16)
	tests := []struct {
		name   string
		header string
		check  func(t *testing.T, err error)
	}{
		{"overlap", `{"a":{"dtype":"F32","shape":[2],"data_offsets":[0,8]},"b":{"dtype":"F32","shape":[2],"data_offsets":[4,12]}}`,
			func(t *testing.T, err error) {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "offset_overlap", verr.Type)
			}},
		{"negative offset", `{"a":{"dtype":"F32","shape":[1],"data_offsets":[-4,0]}}`,
			func(t *testing.T, err error) {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "negative_offset", verr.Type)
			}},
		{"size mismatch", `{"a":{"dtype":"F32","shape":[3],"data_offsets":[0,8]}}`,
			func(t *testing.T, err error) {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, "size_mismatch", verr.Type)
			}},
		{"dtype", `{"a":{"dtype":"BF16","shape":[2],"data_offsets":[0,4]}}`,
			func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrUnsupportedDType), "got %v", err)
			}},
		{"truncated", `{"a":{"dtype":"F32","shape":[8],"data_offsets":[0,32]}}`,
			func(t *testing.T, err error) {
				assert.Error(t, err)
			}},
		{"json", `{"a":`,
			func(t *testing.T, err error) {
				assert.Error(t, err)
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(encode(t, tt.header, data))
			tt.check(t, err)
		})
	}
}

func TestRead_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint64(MaxHeaderSize+1)))
	_, err := Read(&buf)
	assert.True(t, errors.Is(err, ErrHeaderTooLarge), "got %v", err)
}

func TestRead_SkipsGaps(t *testing.T) {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[8:], 0x3f800000) // 1.0
	f, err := Read(encode(t, `{"a":{"dtype":"F32","shape":[1],"data_offsets":[8,12]}}`, data))
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, f.Tensors["a"].AsFloat32())
}
