// Package transcribe provides the Whisper-compatible transcription client
// used by the backend to turn uploaded audio into timed transcript text.
package transcribe
