// Package worker runs the single background loop that executes admitted
// transcription tasks one at a time.
//
// The loop dequeues the oldest pending task, decrypts its artifact, stages
// the audio payload in a temp directory, invokes the external whisper
// collaborator, and resolves the task to completed or failed. A bad task
// never stops the loop; an unexpected loop-level error logs and backs off
// briefly. Shutdown is cooperative: Stop cancels the loop context and waits
// for any in-flight task to settle.
package worker
