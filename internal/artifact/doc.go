// Package artifact builds and parses the encrypted container exchanged
// between the murmur client and server.
//
// A container is a 16-byte random salt followed by a fernet token over a
// deflate zip archive holding metadata.json and audio.ogg. Keys derive from
// the shared password via PBKDF2-HMAC-SHA256 with 100,000 iterations, so both
// sides reproduce the key from the salt alone. Fernet supplies the IV,
// timestamp, and HMAC, making the ciphertext self-delimiting; there is no
// other framing.
package artifact
