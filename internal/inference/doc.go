// Package inference defines the encoder/decoder backend interfaces and the
// greedy autoregressive decoding loop at the heart of the pipeline.
package inference
