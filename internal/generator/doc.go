// Package generator produces answer text from a question and the FAQ
// chunks that passed the confidence gate.
//
// Anthropic calls the Messages API directly over HTTP. Extractive quotes
// the leading sentence of each chunk and needs no network; it is the
// fallback when no API key is configured.
package generator
