// Package structure turns images of chemical drawings into SMILES-like strings.
//
// No recognition is performed. Recognizer is a placeholder: for any image at
// least MinSize pixels on each side it returns one entry of Candidates, chosen
// by a hash of the image bytes so the same image always yields the same string.
package structure

import (
	"fmt"
	"hash/fnv"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/tiff"
)

// Candidates is the fixed placeholder output set.
var Candidates = []string{
	"c1ccccc1",       // benzene
	"CCO",            // ethanol
	"CC(=O)O",        // acetic acid
	"c1ccc2ccccc2c1", // naphthalene
	"CC(C)O",         // isopropanol
}

const DefaultMinSize = 50

type Recognizer struct {
	MinSize int
}

func NewRecognizer(minSize int) *Recognizer {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Recognizer{MinSize: minSize}
}

// Recognize returns a placeholder structure for the image at path. ok is false
// when the image cannot be decoded or is smaller than MinSize.
func (r *Recognizer) Recognize(path string) (smiles string, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return "", false, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width < r.MinSize || cfg.Height < r.MinSize {
		return "", false, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", false, fmt.Errorf("rewind image: %w", err)
	}
	h := fnv.New32a()
	if _, err := io.Copy(h, f); err != nil {
		return "", false, fmt.Errorf("hash image: %w", err)
	}
	return Candidates[int(h.Sum32()%uint32(len(Candidates)))], true, nil
}
