package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// FSStore is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123... Loose objects are stored as
// zstd-compressed "kind len\0content" envelopes. Writes are atomic via
// temp + rename, so concurrent writers of the same object are safe.
type FSStore struct {
	root string
}

// NewFSStore creates an FSStore rooted at the given directory. The objects/
// subdirectory is created lazily on first write.
func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

// Root returns the store's root directory.
func (s *FSStore) Root() string {
	return s.root
}

// objectPath returns the filesystem path for a given hash.
func (s *FSStore) objectPath(h Hash) string {
	return filepath.Join(s.root, "objects", string(h[:2]), string(h[2:]))
}

// Has reports whether the store contains an object with the given hash.
func (s *FSStore) Has(h Hash) bool {
	if len(h) < 3 {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Put serializes and stores an object, returning its content hash.
func (s *FSStore) Put(o Object) (Hash, error) {
	data, err := Marshal(o)
	if err != nil {
		return "", err
	}
	return s.write(o.Kind(), data)
}

// HashOf returns the hash Put would assign without writing anything.
func (s *FSStore) HashOf(o Object) (Hash, error) {
	return NativeHashOf(o)
}

// write stores a serialized object. The on-disk format is the zstd-compressed
// envelope "kind len\0content".
func (s *FSStore) write(kind Kind, data []byte) (Hash, error) {
	h := HashObject(kind, data)

	// Fast path: already exists.
	if s.Has(h) {
		return h, nil
	}

	envelope := fmt.Sprintf("%s %d\x00", kind, len(data))
	raw := append([]byte(envelope), data...)
	compressed, err := compressZstd(raw)
	if err != nil {
		return "", fmt.Errorf("object write compress: %w", err)
	}

	dir := filepath.Join(s.root, "objects", string(h[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("object write mkdir: %w", err)
	}

	// Atomic write via temp + rename.
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("object write tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("object write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write close: %w", err)
	}

	dest := s.objectPath(h)
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("object write rename: %w", err)
	}

	return h, nil
}

// Get retrieves and decodes an object by hash. The stored bytes are
// re-hashed on read, so silent on-disk corruption surfaces as CorruptError.
func (s *FSStore) Get(h Hash) (Object, error) {
	kind, data, err := s.read(h)
	if err != nil {
		return nil, err
	}
	o, err := Unmarshal(kind, data)
	if err != nil {
		return nil, &CorruptError{Hash: h, Reason: "decode", Err: err}
	}
	return o, nil
}

// read retrieves an object by hash, returning its kind and raw content.
func (s *FSStore) read(h Hash) (Kind, []byte, error) {
	if len(h) < 3 {
		return "", nil, &NotFoundError{Hash: h}
	}
	compressed, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, &NotFoundError{Hash: h}
		}
		return "", nil, fmt.Errorf("object read %s: %w", h, err)
	}

	raw, err := decompressZstd(compressed)
	if err != nil {
		return "", nil, &CorruptError{Hash: h, Reason: "zstd decompress", Err: err}
	}

	kind, content, err := parseEnvelope(raw)
	if err != nil {
		return "", nil, &CorruptError{Hash: h, Reason: "envelope", Err: err}
	}

	if got := HashObject(kind, content); got != h {
		return "", nil, &CorruptError{Hash: h, Reason: fmt.Sprintf("content hashes to %s", got.Short())}
	}

	return kind, content, nil
}

// parseEnvelope splits "kind len\0content" and checks the declared length.
func parseEnvelope(raw []byte) (Kind, []byte, error) {
	nulIdx := bytes.IndexByte(raw, 0)
	if nulIdx < 0 {
		return "", nil, fmt.Errorf("invalid format (no NUL)")
	}
	header := string(raw[:nulIdx])
	content := raw[nulIdx+1:]

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("invalid header %q", header)
	}
	kind := Kind(parts[0])
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid length %q: %w", parts[1], err)
	}
	if len(content) != length {
		return "", nil, fmt.Errorf("length mismatch (header=%d, actual=%d)", length, len(content))
	}
	return kind, content, nil
}

// BlobSize returns the byte length of a stored blob by decoding only the
// envelope header, not the whole payload. Large blobs are the norm for the
// callers of this method, so avoiding a full decompression matters.
func (s *FSStore) BlobSize(h Hash) (int64, error) {
	if len(h) < 3 {
		return 0, &NotFoundError{Hash: h}
	}
	f, err := os.Open(s.objectPath(h))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &NotFoundError{Hash: h}
		}
		return 0, fmt.Errorf("object size %s: %w", h, err)
	}
	defer f.Close()

	zr, err := newZstdReader(f)
	if err != nil {
		return 0, &CorruptError{Hash: h, Reason: "zstd decompress", Err: err}
	}
	defer zr.Close()

	header, err := bufio.NewReaderSize(zr, 64).ReadString(0)
	if err != nil {
		return 0, &CorruptError{Hash: h, Reason: "envelope header", Err: err}
	}
	header = header[:len(header)-1] // drop NUL

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return 0, &CorruptError{Hash: h, Reason: fmt.Sprintf("invalid header %q", header)}
	}
	if kind := Kind(parts[0]); kind != KindBlob {
		return 0, kindMismatch(h, kind, KindBlob)
	}
	length, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, &CorruptError{Hash: h, Reason: fmt.Sprintf("invalid length %q", parts[1]), Err: err}
	}
	return length, nil
}

// ---------------------------------------------------------------------------
// Sweeper
// ---------------------------------------------------------------------------

// ForEachObject calls fn for every object hash in the store. Temp files left
// over from interrupted writes are skipped.
func (s *FSStore) ForEachObject(fn func(Hash) error) error {
	objectsDir := filepath.Join(s.root, "objects")
	if _, err := os.Stat(objectsDir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(objectsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		fanout := filepath.Base(filepath.Dir(path))
		if len(fanout) != 2 {
			return nil
		}
		return fn(Hash(fanout + d.Name()))
	})
}

// DeleteObject removes a loose object. Deleting an absent object is not an
// error, so interrupted sweeps can be re-run.
func (s *FSStore) DeleteObject(h Hash) error {
	if len(h) < 3 {
		return nil
	}
	err := os.Remove(s.objectPath(h))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("object delete %s: %w", h, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// zstd helpers
// ---------------------------------------------------------------------------

// compressZstd compresses data using zstd.
func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressZstd decompresses zstd-compressed data.
func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// newZstdReader wraps an io.Reader with zstd decompression.
func newZstdReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &zstdReadCloser{dec: dec}, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return nil
}
