// Package services defines shared utilities for the external tool
// integrations.
//
// The transcription computation and video transcoding are external
// collaborators: murmur shells out to the whisper and ffmpeg binaries and
// never reimplements either. Subpackages wrap those invocations behind small
// testable services with injectable command runners; this package supplies
// the sentinel error markers that classify their failures.
package services
