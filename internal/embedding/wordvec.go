package embedding

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WordVectors serves vectors from a pretrained table read from the fastText /
// word2vec text format: a "count dimensions" header line, then one
// "word v1 ... vD" line per word. Unknown tokens get the zero vector.
type WordVectors struct {
	modelID    string
	digest     uint64 // FNV-1a of every line read
	dimensions int
	vectors    map[string][]float32
	zero       []float32
}

// LoadWordVectorsFile reads a .vec file from path. maxWords > 0 stops after that many rows.
func LoadWordVectorsFile(path string, maxWords int) (*WordVectors, error) {
	if path == "" {
		return nil, fmt.Errorf("model path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word vectors: %w", err)
	}
	defer f.Close()
	wv, err := ReadWordVectors(f, maxWords)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	wv.modelID = wv.identity(filepath.Base(path))
	return wv, nil
}

// ReadWordVectors parses the .vec text format from r.
func ReadWordVectors(r io.Reader, maxWords int) (*WordVectors, error) {
	scanner := bufio.NewScanner(r)
	// 300-dim rows run to a few KB; allow generous lines.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty word vector file")
	}
	h := fnv.New64a()
	h.Write(scanner.Bytes())
	header := strings.Fields(scanner.Text())
	if len(header) != 2 {
		return nil, fmt.Errorf("invalid header %q: want \"<count> <dimensions>\"", scanner.Text())
	}
	count, err := strconv.Atoi(header[0])
	if err != nil || count < 0 {
		return nil, fmt.Errorf("invalid word count %q", header[0])
	}
	dims, err := strconv.Atoi(header[1])
	if err != nil || dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions %q", header[1])
	}
	capacity := count
	if maxWords > 0 && maxWords < capacity {
		capacity = maxWords
	}

	wv := &WordVectors{
		dimensions: dims,
		vectors:    make(map[string][]float32, capacity),
		zero:       make([]float32, dims),
	}
	line := 1
	for scanner.Scan() {
		line++
		if maxWords > 0 && len(wv.vectors) >= maxWords {
			break
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		h.Write([]byte{'\n'})
		h.Write(scanner.Bytes())
		if len(fields) != dims+1 {
			return nil, fmt.Errorf("line %d: got %d values, want %d", line, len(fields)-1, dims)
		}
		vec := make([]float32, dims)
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			vec[i] = float32(v)
		}
		// First occurrence wins; .vec files are frequency-ordered.
		if _, ok := wv.vectors[fields[0]]; !ok {
			wv.vectors[fields[0]] = vec
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	wv.digest = h.Sum64()
	wv.modelID = wv.identity("wordvec")
	return wv, nil
}

// WordVector returns the stored vector for token, or the zero vector if unknown.
// The returned slice is shared and must not be modified.
func (w *WordVectors) WordVector(_ context.Context, token string) ([]float32, error) {
	if v, ok := w.vectors[token]; ok {
		return v, nil
	}
	return w.zero, nil
}

// Size returns the vocabulary size.
func (w *WordVectors) Size() int {
	return len(w.vectors)
}

// Dimensions returns the vector dimension.
func (w *WordVectors) Dimensions() int {
	return w.dimensions
}

// identity names the table by source, shape and content, so vectors cached
// under it are never reused for a different table with the same file name.
func (w *WordVectors) identity(name string) string {
	return fmt.Sprintf("%s:%dd:%dw:%016x", name, w.dimensions, len(w.vectors), w.digest)
}

// ModelID returns the file base name followed by dimensions, word count and content digest.
func (w *WordVectors) ModelID() string {
	return w.modelID
}

// Close is a no-op; the table is garbage collected with the provider.
func (w *WordVectors) Close() error {
	return nil
}
