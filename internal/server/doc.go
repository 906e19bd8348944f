// Package server implements the HTTP API: a synchronous transcription
// endpoint plus monitoring and management endpoints.
package server
