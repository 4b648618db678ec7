package video

import (
	"math"

	"github.com/asticode/go-astiav"
)

// outputTimeBase derives the encoder time base for the input stream.
//
// The preferred source is the stream's own duration and frame count,
// which survive containers with unreliable frame-rate metadata. When that
// yields nothing, h.264 streams fall back to the average frame rate and
// everything else to the real base frame rate. An integral derived fps
// becomes an exact 1/fps rational; a fractional one is expressed over a
// fixed scale of 100000 (see fpsToTimeBase).
func outputTimeBase(s *astiav.Stream) astiav.Rational {
	duration := float64(s.Duration())
	frames := float64(s.NbFrames())
	tb := s.TimeBase()
	if duration > 0 && frames > 0 && tb.Num() > 0 && tb.Den() > 0 {
		fps := float64(tb.Den()) / float64(tb.Num()) / (duration / frames)
		if fps > 0 {
			return fpsToTimeBase(fps)
		}
	}

	var rate astiav.Rational
	if s.CodecParameters().CodecID() == astiav.CodecIDH264 {
		rate = s.AvgFrameRate()
	} else {
		rate = s.RFrameRate()
	}
	return astiav.NewRational(rate.Den(), rate.Num())
}

// fpsToTimeBase converts a frame rate to a time base rational. Integral
// rates map exactly; fractional rates keep five digits of precision.
func fpsToTimeBase(fps float64) astiav.Rational {
	if math.Abs(fps-math.Round(fps)) < 1e-9 {
		return astiav.NewRational(1, int(math.Round(fps)))
	}
	return astiav.NewRational(100000, int(math.Round(fps*100000)))
}
