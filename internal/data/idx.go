package data

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// IDX magic numbers.
const (
	idxImagesMagic = 2051 // 0x00000803
	idxLabelsMagic = 2049 // 0x00000801

	maxIDXSide     = 1 << 14
	maxIDXPrealloc = 1 << 16
)

// ReadIDXImages reads an image file in IDX format.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes
//	number of cols: 4 bytes
//	pixel data: unsigned bytes (0-255)
func ReadIDXImages(r io.Reader) (images [][]byte, rows, cols int, err error) {
	if err := readMagic(r, idxImagesMagic); err != nil {
		return nil, 0, 0, err
	}
	var header [3]uint32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: short image header: %w", ErrInvalidIDX, err)
	}

	numImages := int(header[0])
	rows, cols = int(header[1]), int(header[2])
	if rows == 0 || cols == 0 || rows > maxIDXSide || cols > maxIDXSide {
		return nil, 0, 0, fmt.Errorf("%w: image size %dx%d", ErrInvalidIDX, rows, cols)
	}

	// The count comes from the file; grow as images arrive.
	images = make([][]byte, 0, min(numImages, maxIDXPrealloc))
	for i := range numImages {
		img := make([]byte, rows*cols)
		if _, err := io.ReadFull(r, img); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: image %d of %d: %w", ErrInvalidIDX, i, numImages, err)
		}
		images = append(images, img)
	}
	return images, rows, cols, nil
}

// ReadIDXLabels reads a label file in IDX format.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
func ReadIDXLabels(r io.Reader) ([]byte, error) {
	if err := readMagic(r, idxLabelsMagic); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: short label header: %w", ErrInvalidIDX, err)
	}

	labels, err := io.ReadAll(io.LimitReader(r, int64(count)))
	if err != nil {
		return nil, fmt.Errorf("data: failed to read labels: %w", err)
	}
	if len(labels) != int(count) {
		return nil, fmt.Errorf("%w: %d of %d labels", ErrInvalidIDX, len(labels), count)
	}
	return labels, nil
}

func readMagic(r io.Reader, want uint32) error {
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return fmt.Errorf("%w: missing magic: %w", ErrInvalidIDX, err)
	}
	if magic != want {
		return fmt.Errorf("%w: got magic %d, want %d", ErrInvalidIDX, magic, want)
	}
	return nil
}

func readIDXImagesFile(filename string) ([][]byte, int, int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, 0, err
	}
	defer file.Close()
	return ReadIDXImages(file)
}

func readIDXLabelsFile(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadIDXLabels(file)
}
