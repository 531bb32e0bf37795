// Package variation generates near-duplicate variants of a raster image.
//
// Every variant is driven by a single seed. The seed feeds one PRNG instance
// that first builds the variant's TransformParameters and then supplies all
// of the stage-level random choices, so a fixed seed and source image always
// produce the same pixels.
//
// The pipeline is a fixed sequence of stages:
//
//	INIT -> GEOMETRIC_DONE -> COLOR_DONE -> PERTURBED -> WATERMARKED -> FINAL
//
// Each stage returns either a new PixelBuffer or a *StageError. The Generator
// checks the output after every stage and rolls back to the last good
// snapshot when a stage fails, so a batch always yields the requested number
// of records or a single fatal error.
//
// Nothing in this package touches a rendering surface: decoding and encoding
// go through Decode and Encode, which makes the whole pipeline runnable in
// tests and from the command line.
package variation
