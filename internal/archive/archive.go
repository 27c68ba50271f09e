package archive

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tabvault/tabvault-go/internal/codec"
	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/pkg/crypto/adaptive"
)

// Magic bytes identify archive files.
var magicBytes = []byte("TVARCHIV")

const (
	// DefaultExtension is the conventional archive file suffix.
	DefaultExtension = ".tva"

	formatVersion  = 1
	checksumSize   = 32
	maxHeaderBytes = 1 << 20
)

// archiveHeader is the cleartext metadata block. It is never encrypted,
// so Inspect works without a passphrase, and its exact JSON bytes are
// the additional authenticated data for the sealed body.
type archiveHeader struct {
	CreatedAt   int64               `json:"created_at"`
	AppVersion  string              `json:"app_version,omitempty"`
	SessionID   string              `json:"session_id"`
	FileName    string              `json:"file_name,omitempty"`
	RowCount    int                 `json:"row_count"`
	ColumnCount int                 `json:"column_count"`
	Encrypted   bool                `json:"encrypted"`
	Algorithm   adaptive.CipherType `json:"algorithm,omitempty"`
	Salt        []byte              `json:"salt,omitempty"`
}

// archiveBody is the payload bundle. Dataset, filters, and charts ride
// as codec payloads, so a large dataset stays compressed inside the
// archive exactly as it would in the blob store.
type archiveBody struct {
	Session *domain.Session `json:"session"`
	Dataset *codec.Payload  `json:"dataset,omitempty"`
	Filters *codec.Payload  `json:"filters,omitempty"`
	Charts  *codec.Payload  `json:"charts,omitempty"`
}

// Archive bundles a session record with its materialized payloads.
type Archive struct {
	Session *domain.Session
	Dataset *domain.Dataset
	Filters *domain.FilterState
	Charts  []domain.ChartConfig
}

// Options controls how an archive is written.
type Options struct {
	// Passphrase enables body encryption when non-empty. It must be at
	// least MinPassphraseLength bytes.
	Passphrase []byte

	// Algorithm pins the body cipher. Empty selects by hardware
	// capability. Ignored without a passphrase.
	Algorithm adaptive.CipherType
}

// Info contains metadata about an archive file.
type Info struct {
	Path        string              `json:"path"`
	Size        int64               `json:"size"`
	Checksum    string              `json:"checksum"`
	CreatedAt   int64               `json:"created_at"`
	AppVersion  string              `json:"app_version,omitempty"`
	SessionID   string              `json:"session_id"`
	FileName    string              `json:"file_name,omitempty"`
	RowCount    int                 `json:"row_count"`
	ColumnCount int                 `json:"column_count"`
	Encrypted   bool                `json:"encrypted"`
	Algorithm   adaptive.CipherType `json:"algorithm,omitempty"`
}

// Write exports an archive to path. The file appears atomically: bytes
// stream into a sibling temp file and a rename publishes it.
func Write(path string, a *Archive, opts Options) (*Info, error) {
	if path == "" {
		return nil, domain.ErrMissingArgument.WithDetails("archive path is required")
	}
	if a == nil || a.Session == nil {
		return nil, domain.ErrMissingArgument.WithDetails("archive session record is required")
	}

	hdr := archiveHeader{
		CreatedAt:   time.Now().UnixMilli(),
		AppVersion:  a.Session.AppVersion,
		SessionID:   a.Session.ID,
		FileName:    a.Session.Summary.FileName,
		RowCount:    a.Session.Summary.RowCount,
		ColumnCount: a.Session.Summary.ColumnCount,
	}

	var sealer adaptive.Cipher
	if len(opts.Passphrase) > 0 {
		if len(opts.Passphrase) < MinPassphraseLength {
			return nil, domain.ErrInvalidArgument.WithDetails(
				fmt.Sprintf("passphrase must be at least %d bytes", MinPassphraseLength))
		}
		salt, err := newSalt()
		if err != nil {
			return nil, err
		}
		key, err := deriveBodyKey(opts.Passphrase, salt)
		if err != nil {
			return nil, err
		}
		defer zero(key)

		if opts.Algorithm != "" {
			sealer, err = adaptive.NewWithType(key, opts.Algorithm)
		} else {
			sealer, err = adaptive.New(key)
		}
		if err != nil {
			return nil, domain.ErrInvalidArgument.
				WithDetails("unsupported cipher " + string(opts.Algorithm)).WithCause(err)
		}
		hdr.Encrypted = true
		hdr.Algorithm = sealer.Type()
		hdr.Salt = salt
	}

	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal header: %w", err)
	}

	body, err := encodeBody(a)
	if err != nil {
		return nil, err
	}
	if sealer != nil {
		// The header JSON is the AAD: a sealed body only opens next to
		// the exact header it was written under.
		body, err = sealer.Encrypt(body, hdrJSON)
		if err != nil {
			return nil, fmt.Errorf("archive: encrypt body: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("archive: create directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("archive: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	hash := sha256.New()
	writer := io.MultiWriter(file, hash)

	if _, err := writer.Write(magicBytes); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write magic: %w", err)
	}
	if _, err := writer.Write([]byte{formatVersion}); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write version: %w", err)
	}

	var hdrLen [4]byte
	binary.BigEndian.PutUint32(hdrLen[:], uint32(len(hdrJSON)))
	if _, err := writer.Write(hdrLen[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write header length: %w", err)
	}
	if _, err := writer.Write(hdrJSON); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write header: %w", err)
	}

	var bodyLen [4]byte
	binary.BigEndian.PutUint32(bodyLen[:], uint32(len(body)))
	if _, err := writer.Write(bodyLen[:]); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write body length: %w", err)
	}
	if _, err := writer.Write(body); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write body: %w", err)
	}

	// Checksum trailer covers everything written so far and is not part
	// of the hash itself.
	sum := hash.Sum(nil)
	if _, err := file.Write(sum); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: write checksum: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("archive: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("archive: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, fmt.Errorf("archive: stat: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return nil, fmt.Errorf("archive: rename: %w", err)
	}

	info := hdr.info(path, stat.Size(), sum)
	return info, nil
}

// Read imports an archive from path. The passphrase is required for
// encrypted archives and ignored for plaintext ones.
func Read(path string, passphrase []byte) (*Archive, *Info, error) {
	return readFile(path, passphrase, true)
}

// Inspect reads archive metadata and verifies the checksum without
// decoding or decrypting the body.
func Inspect(path string) (*Info, error) {
	_, info, err := readFile(path, nil, false)
	return info, err
}

func readFile(path string, passphrase []byte, wantBody bool) (*Archive, *Info, error) {
	if path == "" {
		return nil, nil, domain.ErrMissingArgument.WithDetails("archive path is required")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("archive: open: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("archive: stat: %w", err)
	}
	minSize := int64(len(magicBytes)) + 1 + 4 + 4 + checksumSize
	if stat.Size() < minSize {
		return nil, nil, domain.ErrArchiveMalformed.WithDetails("file too short")
	}

	// 1. Verify the checksum trailer over every preceding byte.
	dataLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(file, dataLen, checksumSize), expected); err != nil {
		return nil, nil, fmt.Errorf("archive: read checksum: %w", err)
	}
	hash := sha256.New()
	if _, err := io.CopyN(hash, io.NewSectionReader(file, 0, dataLen), dataLen); err != nil {
		return nil, nil, fmt.Errorf("archive: hash content: %w", err)
	}
	if !bytes.Equal(hash.Sum(nil), expected) {
		return nil, nil, domain.ErrArchiveChecksum
	}

	// 2. Parse the framing. Checksummed bytes can still carry hostile
	// lengths, so every prefix is bounds-checked before it is trusted.
	reader := bufio.NewReader(io.NewSectionReader(file, 0, dataLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, nil, fmt.Errorf("archive: read magic: %w", err)
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, domain.ErrArchiveMalformed.WithDetails("bad magic bytes")
	}

	version, err := reader.ReadByte()
	if err != nil {
		return nil, nil, fmt.Errorf("archive: read version: %w", err)
	}
	if version != formatVersion {
		return nil, nil, domain.ErrArchiveMalformed.
			WithDetails(fmt.Sprintf("unsupported format version %d", version))
	}

	var hdrLenBuf [4]byte
	if _, err := io.ReadFull(reader, hdrLenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("archive: read header length: %w", err)
	}
	hdrLen := int64(binary.BigEndian.Uint32(hdrLenBuf[:]))
	remaining := dataLen - int64(len(magicBytes)) - 1 - 4
	if hdrLen == 0 || hdrLen > maxHeaderBytes || hdrLen+4 > remaining {
		return nil, nil, domain.ErrArchiveMalformed.WithDetails("header length out of range")
	}
	hdrJSON := make([]byte, hdrLen)
	if _, err := io.ReadFull(reader, hdrJSON); err != nil {
		return nil, nil, fmt.Errorf("archive: read header: %w", err)
	}

	var hdr archiveHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, domain.ErrArchiveMalformed.WithDetails("header is not valid JSON").WithCause(err)
	}

	var bodyLenBuf [4]byte
	if _, err := io.ReadFull(reader, bodyLenBuf[:]); err != nil {
		return nil, nil, fmt.Errorf("archive: read body length: %w", err)
	}
	bodyLen := int64(binary.BigEndian.Uint32(bodyLenBuf[:]))
	if bodyLen != remaining-hdrLen-4 {
		return nil, nil, domain.ErrArchiveMalformed.WithDetails("body length mismatch")
	}

	info := hdr.info(path, stat.Size(), expected)
	if !wantBody {
		return nil, info, nil
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, nil, fmt.Errorf("archive: read body: %w", err)
	}

	// 3. Unseal and decode.
	if hdr.Encrypted {
		if len(passphrase) == 0 {
			return nil, nil, domain.ErrMissingArgument.
				WithDetails("archive is encrypted, passphrase required")
		}
		if len(hdr.Salt) != saltLength {
			return nil, nil, domain.ErrArchiveMalformed.WithDetails("kdf salt length out of range")
		}
		key, err := deriveBodyKey(passphrase, hdr.Salt)
		if err != nil {
			return nil, nil, err
		}
		defer zero(key)

		opener, err := adaptive.NewWithType(key, hdr.Algorithm)
		if err != nil {
			return nil, nil, domain.ErrArchiveMalformed.
				WithDetails("unknown cipher " + string(hdr.Algorithm)).WithCause(err)
		}
		body, err = opener.Decrypt(body, hdrJSON)
		if err != nil {
			return nil, nil, domain.ErrArchiveChecksum.
				WithDetails("wrong passphrase or tampered body").WithCause(err)
		}
	}

	a, err := decodeBody(body)
	if err != nil {
		return nil, nil, err
	}
	return a, info, nil
}

func encodeBody(a *Archive) ([]byte, error) {
	body := archiveBody{Session: a.Session}
	if a.Dataset != nil {
		p, err := codec.Serialize(a.Dataset)
		if err != nil {
			return nil, fmt.Errorf("archive: serialize dataset: %w", err)
		}
		body.Dataset = &p
	}
	if a.Filters != nil {
		p, err := codec.Serialize(a.Filters)
		if err != nil {
			return nil, fmt.Errorf("archive: serialize filters: %w", err)
		}
		body.Filters = &p
	}
	if len(a.Charts) > 0 {
		p, err := codec.Serialize(a.Charts)
		if err != nil {
			return nil, fmt.Errorf("archive: serialize charts: %w", err)
		}
		body.Charts = &p
	}

	raw, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal body: %w", err)
	}
	return raw, nil
}

func decodeBody(raw []byte) (*Archive, error) {
	var body archiveBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, domain.ErrArchiveMalformed.WithDetails("body is not valid JSON").WithCause(err)
	}
	if body.Session == nil {
		return nil, domain.ErrArchiveMalformed.WithDetails("body has no session record")
	}

	a := &Archive{Session: body.Session}
	if body.Dataset != nil {
		var ds domain.Dataset
		if err := codec.Deserialize(*body.Dataset, &ds); err != nil {
			return nil, domain.ErrArchiveMalformed.WithDetails("dataset payload unreadable").WithCause(err)
		}
		a.Dataset = &ds
	}
	if body.Filters != nil {
		var fs domain.FilterState
		if err := codec.Deserialize(*body.Filters, &fs); err != nil {
			return nil, domain.ErrArchiveMalformed.WithDetails("filter payload unreadable").WithCause(err)
		}
		a.Filters = &fs
	}
	if body.Charts != nil {
		var charts []domain.ChartConfig
		if err := codec.Deserialize(*body.Charts, &charts); err != nil {
			return nil, domain.ErrArchiveMalformed.WithDetails("chart payload unreadable").WithCause(err)
		}
		a.Charts = charts
	}
	return a, nil
}

func (h archiveHeader) info(path string, size int64, checksum []byte) *Info {
	return &Info{
		Path:        path,
		Size:        size,
		Checksum:    hex.EncodeToString(checksum),
		CreatedAt:   h.CreatedAt,
		AppVersion:  h.AppVersion,
		SessionID:   h.SessionID,
		FileName:    h.FileName,
		RowCount:    h.RowCount,
		ColumnCount: h.ColumnCount,
		Encrypted:   h.Encrypted,
		Algorithm:   h.Algorithm,
	}
}
