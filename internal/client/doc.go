// Package client orchestrates the submission side of murmur: scanning
// directories for video, extracting audio, packaging encrypted task
// containers, submitting them to murmurd, and polling for subtitle results.
//
// Inputs are processed serially while completed submissions are polled in
// the background, one goroutine per outstanding task.
package client
