package archive

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tabvault/tabvault-go/internal/core/domain"
	"github.com/tabvault/tabvault-go/pkg/crypto/adaptive"
)

// testArchiveFixture builds an archive with every payload populated.
// Cell values are strings so a JSON round trip preserves them exactly.
func testArchiveFixture(t *testing.T) *Archive {
	t.Helper()

	summary := domain.NewSummary("orders.xlsx", "Q3", 3, 2, []string{"sku", "qty"})
	session, err := domain.NewSession(summary, "archive-test", domain.CurrentSchemaVersion)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}

	return &Archive{
		Session: session,
		Dataset: &domain.Dataset{
			Headers: []string{"sku", "qty"},
			Rows: [][]any{
				{"sku-0001", "12"},
				{"sku-0002", "7"},
				{"sku-0003", "31"},
			},
		},
		Filters: &domain.FilterState{
			Filters: []domain.ColumnFilter{
				{Column: "qty", Operator: "gt", Values: []any{"10"}, Active: true},
			},
		},
		Charts: []domain.ChartConfig{
			{ID: "chart-1", Type: "bar", Title: "Quantity by SKU", XAxis: "sku", YAxis: "qty", Aggregation: "sum"},
		},
	}
}

func archivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session"+DefaultExtension)
}

func readRaw(t *testing.T, path string) []byte {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return raw
}

func writeRaw(t *testing.T, raw []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tampered"+DefaultExtension)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// retrailer recomputes the checksum trailer after a tamper, simulating
// an attacker who fixes up the integrity check.
func retrailer(raw []byte) []byte {
	data := append([]byte(nil), raw[:len(raw)-checksumSize]...)
	sum := sha256.Sum256(data)
	return append(data, sum[:]...)
}

func assertEqualArchive(t *testing.T, got, want *Archive) {
	t.Helper()
	if !reflect.DeepEqual(got.Session, want.Session) {
		t.Errorf("Session = %+v, want %+v", got.Session, want.Session)
	}
	if !reflect.DeepEqual(got.Dataset, want.Dataset) {
		t.Errorf("Dataset = %+v, want %+v", got.Dataset, want.Dataset)
	}
	if !reflect.DeepEqual(got.Filters, want.Filters) {
		t.Errorf("Filters = %+v, want %+v", got.Filters, want.Filters)
	}
	if !reflect.DeepEqual(got.Charts, want.Charts) {
		t.Errorf("Charts = %+v, want %+v", got.Charts, want.Charts)
	}
}

func TestArchive_RoundTrip(t *testing.T) {
	fixture := testArchiveFixture(t)
	path := archivePath(t)

	info, err := Write(path, fixture, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if info.SessionID != fixture.Session.ID {
		t.Errorf("info.SessionID = %q, want %q", info.SessionID, fixture.Session.ID)
	}
	if info.FileName != "orders.xlsx" || info.RowCount != 3 || info.ColumnCount != 2 {
		t.Errorf("info summary = %q/%d/%d, want orders.xlsx/3/2", info.FileName, info.RowCount, info.ColumnCount)
	}
	if info.Encrypted {
		t.Error("info.Encrypted = true, want false")
	}
	if info.CreatedAt <= 0 {
		t.Errorf("info.CreatedAt = %d, want > 0", info.CreatedAt)
	}
	if len(info.Checksum) != checksumSize*2 {
		t.Errorf("len(info.Checksum) = %d, want %d", len(info.Checksum), checksumSize*2)
	}

	raw := readRaw(t, path)
	if int64(len(raw)) != info.Size {
		t.Errorf("file size = %d, want %d", len(raw), info.Size)
	}
	if !bytes.Contains(raw, []byte("sku-0001")) {
		t.Error("plaintext archive should carry cell text verbatim")
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("temp file left behind: stat error = %v", err)
	}

	got, gotInfo, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	assertEqualArchive(t, got, fixture)
	if gotInfo.Checksum != info.Checksum {
		t.Errorf("Read checksum = %q, want %q", gotInfo.Checksum, info.Checksum)
	}
}

func TestArchive_SessionOnly(t *testing.T) {
	fixture := &Archive{Session: testArchiveFixture(t).Session}
	path := archivePath(t)

	if _, err := Write(path, fixture, Options{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got, _, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(got.Session, fixture.Session) {
		t.Errorf("Session = %+v, want %+v", got.Session, fixture.Session)
	}
	if got.Dataset != nil || got.Filters != nil || got.Charts != nil {
		t.Errorf("payloads = %v/%v/%v, want all nil", got.Dataset, got.Filters, got.Charts)
	}
}

func TestArchive_EncryptedRoundTrip(t *testing.T) {
	fixture := testArchiveFixture(t)
	path := archivePath(t)
	passphrase := []byte("correct horse battery")

	info, err := Write(path, fixture, Options{Passphrase: passphrase})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !info.Encrypted {
		t.Fatal("info.Encrypted = false, want true")
	}
	if info.Algorithm != adaptive.CipherAESGCM && info.Algorithm != adaptive.CipherChaCha20 {
		t.Fatalf("info.Algorithm = %q, want a known cipher", info.Algorithm)
	}

	if bytes.Contains(readRaw(t, path), []byte("sku-0001")) {
		t.Error("encrypted archive leaks cell text")
	}

	got, gotInfo, err := Read(path, passphrase)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	assertEqualArchive(t, got, fixture)
	if !gotInfo.Encrypted || gotInfo.Algorithm != info.Algorithm {
		t.Errorf("Read info = %v/%q, want true/%q", gotInfo.Encrypted, gotInfo.Algorithm, info.Algorithm)
	}
}

func TestArchive_EncryptedWrongPassphrase(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{Passphrase: []byte("correct horse battery")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, _, err := Read(path, []byte("totally-wrong"))
	if !errors.Is(err, domain.ErrArchiveChecksum) {
		t.Fatalf("Read() error = %v, want ErrArchiveChecksum", err)
	}
}

func TestArchive_EncryptedNeedsPassphrase(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{Passphrase: []byte("correct horse battery")}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	_, _, err := Read(path, nil)
	if !errors.Is(err, domain.ErrMissingArgument) {
		t.Fatalf("Read() error = %v, want ErrMissingArgument", err)
	}
}

func TestArchive_WeakPassphraseRejected(t *testing.T) {
	path := archivePath(t)

	_, err := Write(path, testArchiveFixture(t), Options{Passphrase: []byte("short")})
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Write() error = %v, want ErrInvalidArgument", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("rejected write left a file: stat error = %v", err)
	}
}

func TestArchive_PinnedCipher(t *testing.T) {
	fixture := testArchiveFixture(t)
	path := archivePath(t)
	passphrase := []byte("correct horse battery")

	info, err := Write(path, fixture, Options{Passphrase: passphrase, Algorithm: adaptive.CipherChaCha20})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if info.Algorithm != adaptive.CipherChaCha20 {
		t.Fatalf("info.Algorithm = %q, want %q", info.Algorithm, adaptive.CipherChaCha20)
	}

	got, _, err := Read(path, passphrase)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	assertEqualArchive(t, got, fixture)
}

func TestArchive_Validation(t *testing.T) {
	fixture := testArchiveFixture(t)

	t.Run("write requires path", func(t *testing.T) {
		if _, err := Write("", fixture, Options{}); !errors.Is(err, domain.ErrMissingArgument) {
			t.Fatalf("Write() error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("write requires session record", func(t *testing.T) {
		if _, err := Write(archivePath(t), nil, Options{}); !errors.Is(err, domain.ErrMissingArgument) {
			t.Fatalf("Write(nil) error = %v, want ErrMissingArgument", err)
		}
		if _, err := Write(archivePath(t), &Archive{}, Options{}); !errors.Is(err, domain.ErrMissingArgument) {
			t.Fatalf("Write(no session) error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("read requires path", func(t *testing.T) {
		if _, _, err := Read("", nil); !errors.Is(err, domain.ErrMissingArgument) {
			t.Fatalf("Read() error = %v, want ErrMissingArgument", err)
		}
	})

	t.Run("read missing file", func(t *testing.T) {
		_, _, err := Read(filepath.Join(t.TempDir(), "absent.tva"), nil)
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("Read() error = %v, want fs.ErrNotExist", err)
		}
	})
}

func TestArchive_TrailerMismatch(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw := readRaw(t, path)
	raw[len(raw)-checksumSize-1] ^= 0xff

	_, _, err := Read(writeRaw(t, raw), nil)
	if !errors.Is(err, domain.ErrArchiveChecksum) {
		t.Fatalf("Read() error = %v, want ErrArchiveChecksum", err)
	}
}

func TestArchive_TamperSurvivesRewrittenTrailer(t *testing.T) {
	path := archivePath(t)
	passphrase := []byte("correct horse battery")
	if _, err := Write(path, testArchiveFixture(t), Options{Passphrase: passphrase}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Flip a body byte and fix the trailer. The AEAD tag still catches it.
	raw := readRaw(t, path)
	raw[len(raw)-checksumSize-1] ^= 0xff

	_, _, err := Read(writeRaw(t, retrailer(raw)), passphrase)
	if !errors.Is(err, domain.ErrArchiveChecksum) {
		t.Fatalf("Read() error = %v, want ErrArchiveChecksum", err)
	}
}

func TestArchive_HeaderBoundToSealedBody(t *testing.T) {
	path := archivePath(t)
	passphrase := []byte("correct horse battery")
	if _, err := Write(path, testArchiveFixture(t), Options{Passphrase: passphrase}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Rewrite the cleartext file name inside the header JSON, keeping it
	// valid JSON and the same length, then fix the trailer. Decryption
	// must still refuse: the body is sealed against the original header.
	raw := readRaw(t, path)
	idx := bytes.Index(raw, []byte("orders.xlsx"))
	if idx < 0 {
		t.Fatal("header file name not found in archive bytes")
	}
	raw[idx] = 'b'

	_, _, err := Read(writeRaw(t, retrailer(raw)), passphrase)
	if !errors.Is(err, domain.ErrArchiveChecksum) {
		t.Fatalf("Read() error = %v, want ErrArchiveChecksum", err)
	}
}

func TestArchive_Truncated(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	raw := readRaw(t, path)

	t.Run("below structural minimum", func(t *testing.T) {
		_, _, err := Read(writeRaw(t, raw[:10]), nil)
		if !errors.Is(err, domain.ErrArchiveMalformed) {
			t.Fatalf("Read() error = %v, want ErrArchiveMalformed", err)
		}
	})

	t.Run("cut mid body", func(t *testing.T) {
		_, _, err := Read(writeRaw(t, raw[:len(raw)-40]), nil)
		if !errors.Is(err, domain.ErrArchiveChecksum) {
			t.Fatalf("Read() error = %v, want ErrArchiveChecksum", err)
		}
	})
}

func TestArchive_BadMagic(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw := readRaw(t, path)
	raw[0] ^= 0xff

	_, _, err := Read(writeRaw(t, retrailer(raw)), nil)
	if !errors.Is(err, domain.ErrArchiveMalformed) {
		t.Fatalf("Read() error = %v, want ErrArchiveMalformed", err)
	}
}

func TestArchive_UnsupportedVersion(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	raw := readRaw(t, path)
	raw[len(magicBytes)] = 9

	_, _, err := Read(writeRaw(t, retrailer(raw)), nil)
	if !errors.Is(err, domain.ErrArchiveMalformed) {
		t.Fatalf("Read() error = %v, want ErrArchiveMalformed", err)
	}
}

func TestArchive_TrailingGarbage(t *testing.T) {
	path := archivePath(t)
	if _, err := Write(path, testArchiveFixture(t), Options{}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	// Junk between body and trailer shifts the declared body length out
	// of agreement with the file size.
	raw := readRaw(t, path)
	data := append(append([]byte(nil), raw[:len(raw)-checksumSize]...), "junk"...)
	sum := sha256.Sum256(data)
	tampered := append(data, sum[:]...)

	_, _, err := Read(writeRaw(t, tampered), nil)
	if !errors.Is(err, domain.ErrArchiveMalformed) {
		t.Fatalf("Read() error = %v, want ErrArchiveMalformed", err)
	}
}

func TestArchive_Inspect(t *testing.T) {
	fixture := testArchiveFixture(t)

	t.Run("plain archive", func(t *testing.T) {
		path := archivePath(t)
		if _, err := Write(path, fixture, Options{}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		info, err := Inspect(path)
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if info.SessionID != fixture.Session.ID || info.Encrypted {
			t.Errorf("info = %q/%v, want %q/false", info.SessionID, info.Encrypted, fixture.Session.ID)
		}
	})

	t.Run("encrypted archive without passphrase", func(t *testing.T) {
		path := archivePath(t)
		if _, err := Write(path, fixture, Options{Passphrase: []byte("correct horse battery")}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		info, err := Inspect(path)
		if err != nil {
			t.Fatalf("Inspect() error = %v", err)
		}
		if !info.Encrypted || info.Algorithm == "" {
			t.Errorf("info = %v/%q, want true and a cipher name", info.Encrypted, info.Algorithm)
		}
		if info.FileName != "orders.xlsx" {
			t.Errorf("info.FileName = %q, want orders.xlsx", info.FileName)
		}
	})

	t.Run("tampered archive fails closed", func(t *testing.T) {
		path := archivePath(t)
		if _, err := Write(path, fixture, Options{}); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		raw := readRaw(t, path)
		raw[len(raw)-1] ^= 0xff
		if _, err := Inspect(writeRaw(t, raw)); !errors.Is(err, domain.ErrArchiveChecksum) {
			t.Fatalf("Inspect() error = %v, want ErrArchiveChecksum", err)
		}
	})
}

func TestArchive_CompressesLargeDataset(t *testing.T) {
	rows := make([][]any, 2000)
	for i := range rows {
		rows[i] = []any{"constant-padding-value-constant-padding-value", fmt.Sprintf("r%d", i)}
	}
	fixture := testArchiveFixture(t)
	fixture.Dataset = &domain.Dataset{Headers: []string{"pad", "id"}, Rows: rows}
	fixture.Session.Summary = domain.NewSummary("padded.xlsx", "", 2000, 2, []string{"pad", "id"})

	rawJSON, err := json.Marshal(fixture.Dataset)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	path := archivePath(t)
	info, err := Write(path, fixture, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if info.Size >= int64(len(rawJSON))/2 {
		t.Errorf("archive size = %d, want well under raw dataset size %d", info.Size, len(rawJSON))
	}

	got, _, err := Read(path, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(got.Dataset, fixture.Dataset) {
		t.Error("large dataset did not survive the round trip")
	}
}
