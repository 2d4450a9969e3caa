package artifact

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// MetadataName is the archive entry holding the task metadata record.
	MetadataName = "metadata.json"
	// PayloadName is the fixed archive entry name for the audio payload.
	PayloadName = "audio.ogg"
	// ContainerExt is the file extension for encoded containers.
	ContainerExt = ".zip.enc"

	// SharedPassword is the pre-shared secret baked into both client and
	// server. It protects payloads in transit only; anyone with access to
	// either binary can read containers.
	SharedPassword = "whisper-task-password"

	saltLength    = 16
	kdfIterations = 100_000
)

var (
	// ErrDecryption indicates a wrong password or a corrupted container.
	ErrDecryption = errors.New("artifact: decryption failed")
	// ErrMalformed indicates the container is structurally invalid.
	ErrMalformed = errors.New("artifact: malformed container")
)

// Encode packages metadata and payload into an encrypted container:
// a 16-byte random salt followed by a fernet token over a deflate zip
// holding metadata.json and audio.ogg.
func Encode(meta Metadata, payload []byte, password string) ([]byte, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	metaJSON, err := meta.MarshalCanonical()
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	entries := []struct {
		name string
		data []byte
	}{
		{MetadataName, metaJSON},
		{PayloadName, payload},
	}
	for _, entry := range entries {
		w, err := zw.Create(entry.name)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", entry.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt)
	token, err := fernet.EncryptAndSign(archive.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("encrypt archive: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(token))
	out = append(out, salt...)
	out = append(out, token...)
	return out, nil
}

// Decode parses an encrypted container and returns its metadata and payload.
// A failed authentication check yields ErrDecryption; a container missing
// either required entry yields ErrMalformed.
func Decode(container []byte, password string) (Metadata, []byte, error) {
	var meta Metadata

	if len(container) <= saltLength {
		return meta, nil, fmt.Errorf("%w: container too short (%d bytes)", ErrMalformed, len(container))
	}
	salt := container[:saltLength]
	token := container[saltLength:]

	// Negative ttl disables the token timestamp check. Containers are
	// decoded again when the worker dequeues them, which can be hours
	// after packaging.
	key := deriveKey(password, salt)
	archive := fernet.VerifyAndDecrypt(token, -1, []*fernet.Key{key})
	if archive == nil {
		return meta, nil, ErrDecryption
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return meta, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	metaJSON, err := readEntry(zr, MetadataName)
	if err != nil {
		return meta, nil, err
	}
	payload, err := readEntry(zr, PayloadName)
	if err != nil {
		return meta, nil, err
	}

	if err := meta.UnmarshalCanonical(metaJSON); err != nil {
		return meta, nil, fmt.Errorf("%w: metadata: %v", ErrMalformed, err)
	}
	return meta, payload, nil
}

func deriveKey(password string, salt []byte) *fernet.Key {
	derived := pbkdf2.Key([]byte(password), salt, kdfIterations, 32, sha256.New)
	var key fernet.Key
	copy(key[:], derived)
	return &key
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, file := range zr.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrMalformed, name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrMalformed, name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: missing entry %s", ErrMalformed, name)
}

// NewSubmitTime returns the timestamp recorded in freshly packaged metadata.
// Second precision keeps the canonical JSON round-trip stable.
func NewSubmitTime() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
