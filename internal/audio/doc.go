// Package audio provides PCM buffer normalization and WAV encoding/decoding
// for the transcription pipeline.
package audio
