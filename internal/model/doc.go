// Package model manages the on-disk cache of encoder/decoder model artifacts
// and downloads missing variants from a configured remote host.
package model
