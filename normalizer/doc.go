// Package normalizer converts classified tool results into the single text
// placed in the conversation as tool-role content. Image payloads are written
// to local files and replaced by a confirmation line.
package normalizer
