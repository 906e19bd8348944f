// Package mel computes log-mel spectrograms, the Whisper encoder front-end.
package mel
