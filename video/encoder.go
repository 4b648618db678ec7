package video

import (
	"errors"
	"fmt"
	"os"

	"github.com/asticode/go-astiav"
)

// encoder owns the h.264 encoding chain: codec context, output stream,
// muxer, and io context. All resources are released by close on every
// exit path.
type encoder struct {
	outputCtx *astiav.FormatContext
	codecCtx  *astiav.CodecContext
	stream    *astiav.Stream
	ioCtx     *astiav.IOContext
	pkt       *astiav.Packet

	headerWritten bool
}

// newEncoder sets up an h.264 YUV444P encoder writing to path, with the
// container inferred from the path's extension. YUV444P keeps the
// palette's sharp edges better than 4:2:0 subsampling.
func newEncoder(path string, width, height int, timeBase astiav.Rational) (*encoder, error) {
	e := &encoder{}
	ok := false
	defer func() {
		if !ok {
			e.close()
		}
	}()

	outputCtx, err := astiav.AllocOutputFormatContext(nil, "", path)
	if err != nil {
		return nil, fmt.Errorf("%w: alloc output context: %v", ErrEncode, err)
	}
	e.outputCtx = outputCtx

	codec := astiav.FindEncoder(astiav.CodecIDH264)
	if codec == nil {
		return nil, fmt.Errorf("%w: h264 encoder not found", ErrEncode)
	}

	stream := outputCtx.NewStream(codec)
	if stream == nil {
		return nil, fmt.Errorf("%w: create output stream", ErrEncode)
	}
	e.stream = stream

	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return nil, fmt.Errorf("%w: alloc encoder context", ErrEncode)
	}
	e.codecCtx = codecCtx

	codecCtx.SetBitRate(OutputBitrate)
	codecCtx.SetWidth(width)
	codecCtx.SetHeight(height)
	codecCtx.SetTimeBase(timeBase)
	codecCtx.SetGopSize(128)
	codecCtx.SetQmin(20)
	codecCtx.SetQmax(35)
	codecCtx.SetPixelFormat(astiav.PixelFormatYuv444P)
	stream.SetTimeBase(timeBase)
	if outputCtx.OutputFormat().Flags().Has(astiav.IOFormatFlagGlobalheader) {
		codecCtx.SetFlags(codecCtx.Flags().Add(astiav.CodecContextFlagGlobalHeader))
	}

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("global_quality", "23", astiav.NewDictionaryFlags())
	if err := codecCtx.Open(codec, opts); err != nil {
		return nil, fmt.Errorf("%w: open encoder: %v", ErrEncode, err)
	}
	if err := stream.CodecParameters().FromCodecContext(codecCtx); err != nil {
		return nil, fmt.Errorf("%w: encoder parameters: %v", ErrEncode, err)
	}

	if !outputCtx.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		ioCtx, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite))
		if err != nil {
			return nil, fmt.Errorf("%w: open %q: %v", ErrEncode, path, err)
		}
		e.ioCtx = ioCtx
		outputCtx.SetPb(ioCtx)
	}

	if err := outputCtx.WriteHeader(nil); err != nil {
		return nil, fmt.Errorf("%w: write header: %v", ErrEncode, err)
	}
	e.headerWritten = true

	e.pkt = astiav.AllocPacket()
	ok = true
	return e, nil
}

// encodeFrame submits one YUV frame (nil to flush) and drains every ready
// packet into the muxer, rescaling timestamps into the stream time base.
func (e *encoder) encodeFrame(frame *astiav.Frame) error {
	if err := e.codecCtx.SendFrame(frame); err != nil {
		return fmt.Errorf("%w: send frame: %v", ErrEncode, err)
	}
	for {
		if err := e.codecCtx.ReceivePacket(e.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("%w: receive packet: %v", ErrEncode, err)
		}
		e.pkt.RescaleTs(e.codecCtx.TimeBase(), e.stream.TimeBase())
		e.pkt.SetStreamIndex(e.stream.Index())
		err := e.outputCtx.WriteInterleavedFrame(e.pkt)
		e.pkt.Unref()
		if err != nil {
			return fmt.Errorf("%w: write packet: %v", ErrEncode, err)
		}
	}
}

// writeTrailer finalizes the container.
func (e *encoder) writeTrailer() error {
	if err := e.outputCtx.WriteTrailer(); err != nil {
		return fmt.Errorf("%w: write trailer: %v", ErrEncode, err)
	}
	return nil
}

// close releases all encoder resources. Safe on a partially constructed
// encoder.
func (e *encoder) close() {
	if e.pkt != nil {
		e.pkt.Free()
		e.pkt = nil
	}
	if e.codecCtx != nil {
		e.codecCtx.Free()
		e.codecCtx = nil
	}
	if e.ioCtx != nil {
		_ = e.ioCtx.Close()
		e.ioCtx = nil
	}
	if e.outputCtx != nil {
		e.outputCtx.Free()
		e.outputCtx = nil
	}
}

// exists reports whether path names an existing file.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
