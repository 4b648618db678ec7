// Package video routes video frames through the blue-noise dithering
// pipeline: demux, decode, convert to RGBA, dither, convert to YUV444P,
// encode, mux. Only the best video stream is processed; audio and other
// streams are ignored.
package video

import (
	"errors"
	"fmt"
	"log"

	"github.com/asticode/go-astiav"

	"github.com/gpukit/bndither"
)

// OutputBitrate is the default encoder bitrate.
const OutputBitrate = 80_000_000

// Video errors.
var (
	// ErrOpen is returned when the input cannot be opened or probed.
	ErrOpen = errors.New("video: open failed")

	// ErrDecode is returned when demuxing or decoding fails.
	ErrDecode = errors.New("video: decode failed")

	// ErrEncode is returned when encoding or muxing fails.
	ErrEncode = errors.New("video: encode failed")
)

// Options configures one dithering run.
type Options struct {
	// Grayscale selects 1-bit dithering instead of the 3-bit color
	// palette.
	Grayscale bool

	// Overwrite allows clobbering an existing output file.
	Overwrite bool

	// OutputAsPNGs writes numbered per-frame PNGs instead of an encoded
	// video. Useful for encoding with custom parameters afterwards.
	OutputAsPNGs bool
}

// Video dithers the frames of one input video. A Video is good for
// multiple runs against the same input; the blue-noise offsets are held
// stable across the frames of each run to avoid flicker.
type Video struct {
	inputPath string
	ditherer  *bndither.Ditherer

	img *bndither.Image

	decSws *astiav.SoftwareScaleContext
	encSws *astiav.SoftwareScaleContext

	frameCount   uint64
	packetCount  uint64
	wasGrayscale bool
}

// New returns a Video for the given input path using the given Ditherer.
// The Ditherer is borrowed; the caller closes it.
func New(inputPath string, ditherer *bndither.Ditherer) *Video {
	return &Video{
		inputPath: inputPath,
		ditherer:  ditherer,
	}
}

// Close releases the color-space converters. The Video must not be used
// afterwards.
func (v *Video) Close() {
	if v.decSws != nil {
		v.decSws.Free()
		v.decSws = nil
	}
	if v.encSws != nil {
		v.encSws.Free()
		v.encSws = nil
	}
}

// Dither transforms the input video into a dithered video at outputPath,
// or into numbered per-frame PNGs in the working directory when
// opts.OutputAsPNGs. Any libav error
// aborts the run after cleanup; EAGAIN is the loops' normal control flow,
// never an error.
func (v *Video) Dither(outputPath string, noise *bndither.Image, opts Options) error {
	if !noise.Valid() || !noise.Grayscale {
		return fmt.Errorf("%w: blue-noise texture must be a valid grayscale image", bndither.ErrInvalidArgument)
	}
	if !opts.Overwrite && !opts.OutputAsPNGs {
		if err := checkTarget(outputPath); err != nil {
			return err
		}
	}

	v.frameCount = 0
	v.packetCount = 0

	v.resetConverterOnToggle(opts.Grayscale)

	// Demuxer.
	inputCtx := astiav.AllocFormatContext()
	if inputCtx == nil {
		return fmt.Errorf("%w: alloc format context", ErrOpen)
	}
	defer inputCtx.Free()
	if err := inputCtx.OpenInput(v.inputPath, nil, nil); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrOpen, v.inputPath, err)
	}
	defer inputCtx.CloseInput()
	if err := inputCtx.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("%w: find stream info: %v", ErrOpen, err)
	}

	inputStream, decCodec, err := bestVideoStream(inputCtx)
	if err != nil {
		return err
	}

	// Decoder.
	decCtx := astiav.AllocCodecContext(decCodec)
	if decCtx == nil {
		return fmt.Errorf("%w: alloc decoder context", ErrOpen)
	}
	defer decCtx.Free()
	if err := inputStream.CodecParameters().ToCodecContext(decCtx); err != nil {
		return fmt.Errorf("%w: decoder parameters: %v", ErrOpen, err)
	}
	if err := decCtx.Open(decCodec, nil); err != nil {
		return fmt.Errorf("%w: open decoder: %v", ErrOpen, err)
	}

	width := inputStream.CodecParameters().Width()
	height := inputStream.CodecParameters().Height()
	timeBase := outputTimeBase(inputStream)
	log.Printf("video: %q %dx%d, output time base %d/%d",
		v.inputPath, width, height, timeBase.Num(), timeBase.Den())

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()

	// Encoder and muxer, unless frames go out as PNGs.
	var enc *encoder
	if !opts.OutputAsPNGs {
		enc, err = newEncoder(outputPath, width, height, timeBase)
		if err != nil {
			return err
		}
		defer enc.close()
	}

	// Alternate decoding and encoding until input EOF.
	for {
		if err := inputCtx.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			return fmt.Errorf("%w: read packet %d: %v", ErrDecode, v.packetCount, err)
		}
		if pkt.StreamIndex() != inputStream.Index() {
			pkt.Unref()
			continue
		}
		v.packetCount++
		err := v.handlePacket(decCtx, pkt, frame, noise, enc, opts)
		pkt.Unref()
		if err != nil {
			return err
		}
	}

	// Flush the decoder, then the encoder.
	if err := v.handlePacket(decCtx, nil, frame, noise, enc, opts); err != nil {
		return err
	}
	if enc != nil {
		if err := enc.encodeFrame(nil); err != nil {
			return err
		}
		if err := enc.writeTrailer(); err != nil {
			return err
		}
	}
	return nil
}

// handlePacket submits one packet (nil to flush) and drains every ready
// frame through dithering and on to the sink.
func (v *Video) handlePacket(decCtx *astiav.CodecContext, pkt *astiav.Packet, frame *astiav.Frame, noise *bndither.Image, enc *encoder, opts Options) error {
	if err := decCtx.SendPacket(pkt); err != nil {
		return fmt.Errorf("%w: send packet %d: %v", ErrDecode, v.packetCount, err)
	}

	for {
		if err := decCtx.ReceiveFrame(frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("%w: receive frame: %v", ErrDecode, err)
		}
		v.frameCount++

		dithered, err := v.ditherFrame(frame, noise, opts)
		if err != nil {
			return err
		}

		if opts.OutputAsPNGs {
			name := fmt.Sprintf("output_%010d.png", v.frameCount)
			if err := dithered.SaveAsPNG(name, true); err != nil {
				return err
			}
			continue
		}

		yuvFrame, err := v.convertToYUV(dithered, frame.Width(), frame.Height(), opts.Grayscale)
		if err != nil {
			return err
		}
		yuvFrame.SetPts(int64(v.frameCount) - 1)
		yuvFrame.SetDuration(1)
		err = enc.encodeFrame(yuvFrame)
		yuvFrame.Free()
		if err != nil {
			return err
		}
	}
}

// ditherFrame converts one decoded frame to RGBA, fills the pipeline
// image, and dithers it. Offsets are preserved across frames so the noise
// pattern stays put.
func (v *Video) ditherFrame(frame *astiav.Frame, noise *bndither.Image, opts Options) (*bndither.Image, error) {
	w, h := frame.Width(), frame.Height()

	rgbaFrame := astiav.AllocFrame()
	defer rgbaFrame.Free()
	rgbaFrame.SetWidth(w)
	rgbaFrame.SetHeight(h)
	rgbaFrame.SetPixelFormat(astiav.PixelFormatRgba)
	if err := rgbaFrame.AllocBuffer(1); err != nil {
		return nil, fmt.Errorf("%w: alloc RGBA frame: %v", ErrDecode, err)
	}

	// The decode-side converter persists for the life of the run; the
	// decoded pixel format is fixed after the first frame.
	if v.decSws == nil {
		sws, err := astiav.CreateSoftwareScaleContext(
			w, h, frame.PixelFormat(),
			w, h, astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return nil, fmt.Errorf("%w: create decode-side converter: %v", ErrDecode, err)
		}
		v.decSws = sws
	}
	if err := v.decSws.ScaleFrame(frame, rgbaFrame); err != nil {
		return nil, fmt.Errorf("%w: convert frame to RGBA: %v", ErrDecode, err)
	}

	data, err := rgbaFrame.Data().Bytes(1)
	if err != nil {
		return nil, fmt.Errorf("%w: frame bytes: %v", ErrDecode, err)
	}

	if v.img == nil || v.img.Width != w || v.img.Height != h {
		v.img = bndither.New(w, h, false)
	}
	copy(v.img.Data, data[:4*w*h])
	v.img.Grayscale = false
	v.img.Dither = bndither.DitherNone
	v.img.PreserveOffsets = true

	if opts.Grayscale {
		return v.ditherer.GrayscaleDither(v.img, noise)
	}
	return v.ditherer.ColorDither(v.img, noise)
}

// resetConverterOnToggle frees the encode-side converter when the dither
// mode changed since the previous run, so convertToYUV rebuilds it with
// the right source format. Reports whether the mode changed.
func (v *Video) resetConverterOnToggle(grayscale bool) bool {
	changed := v.wasGrayscale != grayscale
	v.wasGrayscale = grayscale
	if changed && v.encSws != nil {
		v.encSws.Free()
		v.encSws = nil
	}
	return changed
}

// convertToYUV turns a dithered image into a YUV444P frame. The converter
// source format follows the dither mode, so it is rebuilt when the mode
// toggled since the previous run or frame.
func (v *Video) convertToYUV(img *bndither.Image, w, h int, grayscale bool) (*astiav.Frame, error) {
	srcFormat := astiav.PixelFormatRgba
	if grayscale {
		srcFormat = astiav.PixelFormatGray8
	}

	if v.encSws == nil {
		sws, err := astiav.CreateSoftwareScaleContext(
			w, h, srcFormat,
			w, h, astiav.PixelFormatYuv444P,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear))
		if err != nil {
			return nil, fmt.Errorf("%w: create encode-side converter: %v", ErrEncode, err)
		}
		v.encSws = sws
	}

	srcFrame := astiav.AllocFrame()
	defer srcFrame.Free()
	srcFrame.SetWidth(w)
	srcFrame.SetHeight(h)
	srcFrame.SetPixelFormat(srcFormat)
	if err := srcFrame.AllocBuffer(1); err != nil {
		return nil, fmt.Errorf("%w: alloc conversion frame: %v", ErrEncode, err)
	}
	if err := srcFrame.Data().SetBytes(img.Data, 1); err != nil {
		return nil, fmt.Errorf("%w: fill conversion frame: %v", ErrEncode, err)
	}

	yuvFrame := astiav.AllocFrame()
	yuvFrame.SetWidth(w)
	yuvFrame.SetHeight(h)
	yuvFrame.SetPixelFormat(astiav.PixelFormatYuv444P)
	if err := yuvFrame.AllocBuffer(1); err != nil {
		yuvFrame.Free()
		return nil, fmt.Errorf("%w: alloc YUV frame: %v", ErrEncode, err)
	}
	if err := v.encSws.ScaleFrame(srcFrame, yuvFrame); err != nil {
		yuvFrame.Free()
		return nil, fmt.Errorf("%w: convert to YUV444P: %v", ErrEncode, err)
	}
	return yuvFrame, nil
}

// bestVideoStream selects the best video stream and its decoder through
// the demuxer's av_find_best_stream heuristic, which skips
// attached-picture streams (cover art is typed as video) and breaks ties
// between multiple video streams on quality.
func bestVideoStream(inputCtx *astiav.FormatContext) (*astiav.Stream, *astiav.Codec, error) {
	s, codec, err := inputCtx.FindBestStream(astiav.MediaTypeVideo, -1, -1)
	if err != nil || s == nil {
		return nil, nil, fmt.Errorf("%w: no video stream: %v", ErrOpen, err)
	}
	if codec == nil {
		codec = astiav.FindDecoder(s.CodecParameters().CodecID())
	}
	if codec == nil {
		return nil, nil, fmt.Errorf("%w: no decoder for stream %d", ErrOpen, s.Index())
	}
	return s, codec, nil
}

func checkTarget(path string) error {
	if exists(path) {
		return fmt.Errorf("%w: %q", bndither.ErrAlreadyExists, path)
	}
	return nil
}
