package artifact

import (
	"bytes"
	"errors"
	"testing"
)

func sampleMetadata() Metadata {
	return Metadata{
		TaskID:     "task-1234",
		Filename:   "episode.mkv",
		Password:   SharedPassword,
		Model:      "large-v3-turbo",
		SubmitTime: NewSubmitTime(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	meta := sampleMetadata()
	payload := bytes.Repeat([]byte{0x4f, 0x67, 0x67, 0x53}, 512)

	container, err := Encode(meta, payload, SharedPassword)
	if err != nil {
		t.Fatal(err)
	}

	gotMeta, gotPayload, err := Decode(container, SharedPassword)
	if err != nil {
		t.Fatal(err)
	}
	if gotMeta != meta {
		t.Fatalf("metadata mismatch: got %+v, want %+v", gotMeta, meta)
	}
	if !bytes.Equal(gotPayload, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d", len(gotPayload), len(payload))
	}
}

func TestDecodeWrongPassword(t *testing.T) {
	container, err := Encode(sampleMetadata(), []byte("audio"), SharedPassword)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := Decode(container, "not-the-password"); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecodeTamperedCiphertext(t *testing.T) {
	container, err := Encode(sampleMetadata(), []byte("audio payload bytes"), SharedPassword)
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte in the ciphertext portion; authentication must fail,
	// never silently return wrong data.
	for _, offset := range []int{saltLength, saltLength + len(container[saltLength:])/2, len(container) - 1} {
		tampered := append([]byte(nil), container...)
		tampered[offset] ^= 0x01
		if _, _, err := Decode(tampered, SharedPassword); !errors.Is(err, ErrDecryption) {
			t.Fatalf("offset %d: expected ErrDecryption, got %v", offset, err)
		}
	}
}

func TestDecodeTruncatedContainer(t *testing.T) {
	if _, _, err := Decode(make([]byte, saltLength), SharedPassword); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestEncodeRejectsIncompleteMetadata(t *testing.T) {
	meta := sampleMetadata()
	meta.TaskID = ""
	if _, err := Encode(meta, []byte("x"), SharedPassword); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestFreshSaltPerContainer(t *testing.T) {
	meta := sampleMetadata()
	a, err := Encode(meta, []byte("x"), SharedPassword)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(meta, []byte("x"), SharedPassword)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:saltLength], b[:saltLength]) {
		t.Fatal("salt reused across containers")
	}
}
