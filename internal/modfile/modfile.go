// Package modfile stores module graphs in a small binary container: the
// four magic bytes "MPCH" followed by one msgpack payload.
//
// References are flattened into tables and linked by 1-based index, 0
// meaning nil, so shared and self-referencing nodes survive a round trip.
// The import table is not stored: after Load every reference is a plain
// reference owned by the module.
package modfile

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"modpatch/internal/meta"
)

// Magic opens every module file.
const Magic = "MPCH"

// SchemaVersion is bumped whenever payload changes shape.
const SchemaVersion uint16 = 1

var (
	ErrBadMagic = errors.New("not a module file")
	ErrSchema   = errors.New("unsupported module file schema")
	ErrCorrupt  = errors.New("corrupt module file")
)

// Digest identifies an encoded module.
type Digest [sha256.Size]byte

type payload struct {
	Schema   uint16
	Name     string
	Platform string
	Scopes   []string

	Refs    []typeRefDTO
	Params  []paramDTO
	Fields  []fieldRefDTO
	Methods []methodRefDTO

	Types []typeDefDTO
}

type typeRefDTO struct {
	Kind      uint8
	Scope     string
	Namespace string
	Name      string
	Args      []uint32
	Elem      uint32
	Param     uint32
}

type paramDTO struct {
	Name        string
	Position    int
	Owner       string
	Constraints []uint32
}

type fieldRefDTO struct {
	Declaring uint32
	Name      string
	Type      uint32
}

type methodRefDTO struct {
	Declaring   uint32
	Name        string
	HasThis     bool
	Return      uint32
	Params      []uint32
	GenericArgs []uint32
}

type typeDefDTO struct {
	Namespace     string
	Name          string
	Base          uint32
	Interfaces    []uint32
	GenericParams []uint32
	Fields        []fieldDefDTO
	Methods       []methodDefDTO
	Nested        []typeDefDTO
	Synthetic     bool
}

type fieldDefDTO struct {
	Name   string
	Type   uint32
	Static bool
}

type paramDefDTO struct {
	Name string
	Type uint32
}

type methodDefDTO struct {
	Name          string
	Static        bool
	Return        uint32
	Params        []paramDefDTO
	GenericParams []uint32
	HasBody       bool
	Locals        []localDTO
	Code          []instructionDTO
}

type localDTO struct {
	Index int
	Type  uint32
}

// operand kinds stored in instructionDTO.Operand
const (
	operandNil uint8 = iota
	operandType
	operandField
	operandMethod
	operandInt
	operandFloat
	operandString
)

type instructionDTO struct {
	Op      uint8
	Operand uint8
	Ref     uint32
	Int     int64
	Float   float64
	Str     string
}

// Write encodes m to w.
func Write(w io.Writer, m *meta.Module) error {
	p, err := encode(m)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, Magic); err != nil {
		return err
	}
	return msgpack.NewEncoder(w).Encode(p)
}

// Read decodes one module from r.
func Read(r io.Reader) (*meta.Module, error) {
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, err
	}
	if string(magic[:]) != Magic {
		return nil, ErrBadMagic
	}
	var p payload
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if p.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchema, p.Schema)
	}
	return decode(&p)
}

// Load reads the module file at path.
func Load(path string) (*meta.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Save writes m to path, replacing any existing file atomically.
func Save(path string, m *meta.Module) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*.mpch")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	bw := bufio.NewWriter(f)
	if err = Write(bw, m); err != nil {
		_ = f.Close()
		return err
	}
	if err = bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// Sum returns the digest of m's encoding. Equal graphs give equal digests.
func Sum(m *meta.Module) (Digest, error) {
	var buf bytes.Buffer
	if err := Write(&buf, m); err != nil {
		return Digest{}, err
	}
	return sha256.Sum256(buf.Bytes()), nil
}
