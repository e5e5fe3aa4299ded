package voxel

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
)

// EncodeGrid compresses a scan grid with gob encoding and gzip
// compression for storage as a results-database blob. Derived fields
// (Pgap, Class) travel with the grid when Finalize has run.
func EncodeGrid(g *Grid) ([]byte, error) {
	blob, err := gobDeflate(g)
	if err != nil {
		return nil, fmt.Errorf("encode voxel grid: %w", err)
	}
	return blob, nil
}

// DecodeGrid reverses EncodeGrid.
func DecodeGrid(blob []byte) (*Grid, error) {
	var g Grid
	if err := gobInflate(blob, &g); err != nil {
		return nil, fmt.Errorf("decode voxel grid: %w", err)
	}
	return &g, nil
}

// EncodeFloats compresses one per-voxel float array (PAIv, PAIh,
// cover) for blob storage.
func EncodeFloats(v []float64) ([]byte, error) {
	blob, err := gobDeflate(v)
	if err != nil {
		return nil, fmt.Errorf("encode float array: %w", err)
	}
	return blob, nil
}

// DecodeFloats reverses EncodeFloats.
func DecodeFloats(blob []byte) ([]float64, error) {
	var v []float64
	if err := gobInflate(blob, &v); err != nil {
		return nil, fmt.Errorf("decode float array: %w", err)
	}
	return v, nil
}

// EncodeCounts compresses a per-voxel scan-count array.
func EncodeCounts(v []int32) ([]byte, error) {
	blob, err := gobDeflate(v)
	if err != nil {
		return nil, fmt.Errorf("encode count array: %w", err)
	}
	return blob, nil
}

// DecodeCounts reverses EncodeCounts.
func DecodeCounts(blob []byte) ([]int32, error) {
	var v []int32
	if err := gobInflate(blob, &v); err != nil {
		return nil, fmt.Errorf("decode count array: %w", err)
	}
	return v, nil
}

func gobDeflate(v any) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(v); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobInflate(blob []byte, v any) error {
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return err
	}
	defer gz.Close()
	return gob.NewDecoder(gz).Decode(v)
}
