// Package audio produces the single finite audio payload a workflow run
// submits for transcription. A payload comes either from a live capture
// session fed chunk-by-chunk over a microphone bridge, or directly from a
// pre-recorded file.
package audio
