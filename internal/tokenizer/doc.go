// Package tokenizer maps Whisper token ids to text using a supplied
// vocabulary table and defines the control token constants.
package tokenizer
