package checkpoint

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"StockCast/internal/forecast"
)

// Binary weights layout, little-endian throughout:
//
//	magic "SCKP" | uint16 version | uint32 tensor count
//	per tensor: uint16 name len | name bytes | uint32 rows | uint32 cols |
//	            rows*cols float64 bits
//
// Float64 values are stored as raw IEEE 754 bits so a load reproduces the
// saved weights exactly.
const (
	weightsMagic   = "SCKP"
	weightsVersion = 1

	maxTensors    = 1 << 10
	maxNameLen    = 1 << 8
	maxTensorElem = 1 << 26
)

func encodeTensors(w io.Writer, ts []forecast.Tensor) error {
	if _, err := w.Write([]byte(weightsMagic)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(weightsVersion)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ts))); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for _, t := range ts {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(t.Name))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(t.Name)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(t.Rows)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(t.Cols)); err != nil {
			return err
		}
		for _, v := range t.Data {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeTensors(r io.Reader) ([]forecast.Tensor, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != weightsMagic {
		return nil, fmt.Errorf("bad magic %q", magic)
	}
	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != weightsVersion {
		return nil, fmt.Errorf("unsupported weights version %d", version)
	}
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	if count > maxTensors {
		return nil, fmt.Errorf("tensor count %d exceeds limit", count)
	}

	ts := make([]forecast.Tensor, 0, count)
	buf := make([]byte, 8)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, fmt.Errorf("tensor %d: read name length: %w", i, err)
		}
		if nameLen == 0 || nameLen > maxNameLen {
			return nil, fmt.Errorf("tensor %d: invalid name length %d", i, nameLen)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("tensor %d: read name: %w", i, err)
		}
		var rows, cols uint32
		if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
			return nil, fmt.Errorf("tensor %q: read rows: %w", name, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
			return nil, fmt.Errorf("tensor %q: read cols: %w", name, err)
		}
		n := int(rows) * int(cols)
		if rows == 0 || cols == 0 || n > maxTensorElem {
			return nil, fmt.Errorf("tensor %q: invalid shape %dx%d", name, rows, cols)
		}
		data := make([]float64, n)
		for j := range data {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("tensor %q: read element %d: %w", name, j, err)
			}
			data[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf))
		}
		ts = append(ts, forecast.Tensor{
			Name: string(name),
			Rows: int(rows),
			Cols: int(cols),
			Data: data,
		})
	}
	return ts, nil
}
