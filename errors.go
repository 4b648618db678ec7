package bndither

import "errors"

// Image and dithering errors. Callers match with errors.Is.
var (
	// ErrDecode is returned when an input image cannot be parsed.
	ErrDecode = errors.New("bndither: decode failed")

	// ErrEncode is returned when an output image cannot be written.
	ErrEncode = errors.New("bndither: encode failed")

	// ErrUnsupported is returned for file types outside png/pgm/ppm.
	ErrUnsupported = errors.New("bndither: unsupported file type")

	// ErrAlreadyExists is returned when saving would overwrite an existing
	// file and overwrite was not requested.
	ErrAlreadyExists = errors.New("bndither: file already exists")

	// ErrInvalidImage is returned when an Image's buffer does not match
	// its dimensions and chroma.
	ErrInvalidImage = errors.New("bndither: invalid image")

	// ErrInvalidArgument is returned for argument contract violations,
	// such as a non-grayscale blue-noise texture.
	ErrInvalidArgument = errors.New("bndither: invalid argument")
)
