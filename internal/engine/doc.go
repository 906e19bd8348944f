// Package engine provides the transcription session controller. It owns the
// full pipeline from raw audio to text and serializes requests through a
// single worker, so one model instance is never shared across concurrent
// decodes.
package engine
