package bndither

import (
	"encoding/binary"
	"fmt"
	"log"

	"github.com/gpukit/bndither/compute"
)

// Ditherer executes blue-noise threshold dithering. It prefers the
// process-wide compute device and transparently falls back to an
// equivalent CPU implementation when no device can be acquired. The two
// paths produce identical bytes.
type Ditherer struct {
	handle *compute.Handle
	cpu    bool
}

// NewDitherer returns a Ditherer on the shared compute device, or a CPU
// Ditherer when no device is available (logged once).
func NewDitherer() *Ditherer {
	h, err := compute.Acquire()
	if err != nil {
		log.Printf("bndither: compute device unavailable, dithering on CPU: %v", err)
		return &Ditherer{cpu: true}
	}
	return &Ditherer{handle: h}
}

// NewCPUDitherer returns a Ditherer that never touches a device.
func NewCPUDitherer() *Ditherer { return &Ditherer{cpu: true} }

// Close releases the device handle, if any. The Ditherer must not be used
// afterwards.
func (d *Ditherer) Close() {
	if d.handle != nil {
		d.handle.Close()
		d.handle = nil
	}
}

// OnDevice reports whether dithering runs on a compute device.
func (d *Ditherer) OnDevice() bool { return !d.cpu && d.handle != nil }

// GrayscaleDither returns a grayscale rendition of img quantized to the
// 1-bit palette against the blue-noise threshold texture. The noise image
// must be grayscale. Unless img.PreserveOffsets is set, fresh channel
// offsets are generated for the call; the grayscale path uses the first.
func (d *Ditherer) GrayscaleDither(img, noise *Image) (*Image, error) {
	if err := validateDitherInput(img, noise); err != nil {
		return nil, err
	}

	if !img.PreserveOffsets {
		img.regenerateOffsets()
	}
	offset := img.Offsets()[0]

	gray := img.ToGrayscale()
	gray.PreserveOffsets = img.PreserveOffsets
	gray.offsets = img.offsets

	if !d.OnDevice() {
		cpuGrayscaleDither(gray, noise, offset)
		gray.Dither = DitherBW1
		return gray, nil
	}

	if err := d.runKernel(KernelGrayscale, grayscaleKernelSource, gray, noise, [3]uint32{offset, 0, 0}, false); err != nil {
		return nil, err
	}
	gray.Dither = DitherBW1
	return gray, nil
}

// ColorDither returns a copy of img whose R, G, B channels are quantized
// to the 3-bit palette, each channel thresholded against its own phase of
// the noise tile. Alpha is copied unchanged. The input must be RGBA and
// the noise grayscale.
func (d *Ditherer) ColorDither(img, noise *Image) (*Image, error) {
	if err := validateDitherInput(img, noise); err != nil {
		return nil, err
	}
	if img.Grayscale {
		return nil, fmt.Errorf("%w: color dithering requires an RGBA image", ErrInvalidArgument)
	}

	if !img.PreserveOffsets {
		img.regenerateOffsets()
	}
	offsets := img.Offsets()

	out := img.Clone()

	if !d.OnDevice() {
		cpuColorDither(out, noise, offsets)
		out.Dither = DitherColor3
		return out, nil
	}

	if err := d.runKernel(KernelColor, colorKernelSource, out, noise, offsets, true); err != nil {
		return nil, err
	}
	out.Dither = DitherColor3
	return out, nil
}

func validateDitherInput(img, noise *Image) error {
	if !img.Valid() {
		return fmt.Errorf("%w: input image", ErrInvalidImage)
	}
	if !noise.Valid() {
		return fmt.Errorf("%w: blue-noise image", ErrInvalidImage)
	}
	if !noise.Grayscale {
		return fmt.Errorf("%w: blue-noise texture must be grayscale", ErrInvalidArgument)
	}
	return nil
}

// runKernel drives the device pipeline for one dither call: verify or
// (re)create the kernel entry and its buffers, upload, bind, pick tile
// sizes, execute blocking, read back in place of target.Data.
func (d *Ditherer) runKernel(kernelName, source string, target, noise *Image, offsets [3]uint32, color bool) error {
	h := d.handle

	// Stale buffer sizes (image resized since the entry was built)
	// invalidate the whole entry.
	if h.HasKernel(kernelName) && !d.verifyBuffers(kernelName, target.Size(), noise.Size()) {
		h.CleanupKernel(kernelName)
	}

	if !h.HasKernel(kernelName) {
		if err := h.CreateKernelFromSource(source, kernelName); err != nil {
			return err
		}
	}

	wideSize := 4 * target.Size()
	noiseSize := 4 * noise.Size()
	if !h.HasBuffer(kernelName, bufInput) {
		if err := h.CreateBuffer(kernelName, compute.AccessReadOnly, wideSize, nil, bufInput); err != nil {
			return err
		}
	}
	if !h.HasBuffer(kernelName, bufOutput) {
		if err := h.CreateBuffer(kernelName, compute.AccessReadWrite, wideSize, nil, bufOutput); err != nil {
			return err
		}
	}
	if !h.HasBuffer(kernelName, bufNoise) {
		if err := h.CreateBuffer(kernelName, compute.AccessReadOnly, noiseSize, nil, bufNoise); err != nil {
			return err
		}
	}
	if color && !h.HasBuffer(kernelName, bufOffsets) {
		if err := h.CreateBuffer(kernelName, compute.AccessReadOnly, 12, nil, bufOffsets); err != nil {
			return err
		}
	}

	if err := h.WriteBuffer(kernelName, bufInput, widenBytes(target.Data)); err != nil {
		return err
	}
	if err := h.WriteBuffer(kernelName, bufNoise, widenBytes(noise.Data)); err != nil {
		return err
	}
	if color {
		if err := h.WriteBuffer(kernelName, bufOffsets, offsetBytes(offsets)); err != nil {
			return err
		}
	}

	if err := h.BindBuffer(kernelName, 0, bufInput); err != nil {
		return err
	}
	if err := h.BindBuffer(kernelName, 1, bufNoise); err != nil {
		return err
	}
	if err := h.BindBuffer(kernelName, 2, bufOutput); err != nil {
		return err
	}
	for i, v := range []uint32{
		uint32(target.Width), uint32(target.Height),
		uint32(noise.Width), uint32(noise.Height),
	} {
		if err := h.BindValue(kernelName, uint32(3+i), u32Bytes(v)); err != nil {
			return err
		}
	}
	if color {
		if err := h.BindBuffer(kernelName, 7, bufOffsets); err != nil {
			return err
		}
	} else {
		if err := h.BindValue(kernelName, 7, u32Bytes(offsets[0])); err != nil {
			return err
		}
	}

	wg, err := h.WorkGroupSize(kernelName)
	if err != nil {
		return err
	}
	tile0, tile1 := compute.TileSizes(wg, target.Width, target.Height)

	if err := h.Execute2D(kernelName,
		[2]uint32{uint32(target.Width), uint32(target.Height)},
		[2]uint32{uint32(tile0), uint32(tile1)}, true); err != nil {
		return err
	}

	wide := make([]byte, wideSize)
	if err := h.ReadBuffer(kernelName, bufOutput, wide); err != nil {
		return err
	}
	narrowWords(wide, target.Data)
	return nil
}

// verifyBuffers reports whether the cached entry's buffer sizes still
// match the current image and noise geometry.
func (d *Ditherer) verifyBuffers(kernelName string, imgSize, noiseSize int) bool {
	for _, name := range []string{bufInput, bufOutput} {
		if d.handle.BufferSize(kernelName, name) != 4*imgSize {
			return false
		}
	}
	return d.handle.BufferSize(kernelName, bufNoise) == 4*noiseSize
}

// cpuGrayscaleDither thresholds gray in place with the kernel's exact
// semantics.
func cpuGrayscaleDither(gray, noise *Image, offset uint32) {
	w, h := uint32(gray.Width), uint32(gray.Height)
	bnW, bnH := uint32(noise.Width), uint32(noise.Height)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			i := x + y*w
			if gray.Data[i] > noise.Data[bnIndex(x, y, offset, bnW, bnH)] {
				gray.Data[i] = 255
			} else {
				gray.Data[i] = 0
			}
		}
	}
}

// cpuColorDither thresholds the R, G, B channels of img in place, each
// against its own noise phase. Alpha is untouched.
func cpuColorDither(img, noise *Image, offsets [3]uint32) {
	w, h := uint32(img.Width), uint32(img.Height)
	bnW, bnH := uint32(noise.Width), uint32(noise.Height)
	for y := uint32(0); y < h; y++ {
		for x := uint32(0); x < w; x++ {
			base := 4 * (x + y*w)
			for c := uint32(0); c < 3; c++ {
				if img.Data[base+c] > noise.Data[bnIndex(x, y, offsets[c], bnW, bnH)] {
					img.Data[base+c] = 255
				} else {
					img.Data[base+c] = 0
				}
			}
		}
	}
}

// bnIndex maps an output coordinate and offset to a noise-tile index,
// wrapping the offset through the tile in both axes.
func bnIndex(x, y, o, bnW, bnH uint32) uint32 {
	offsetX := (o%bnW + x) % bnW
	offsetY := (o/bnW + y) % bnH
	return offsetX + offsetY*bnW
}

// widenBytes expands each byte to a little-endian u32 for device storage.
func widenBytes(src []byte) []byte {
	out := make([]byte, 4*len(src))
	for i, b := range src {
		out[4*i] = b
	}
	return out
}

// narrowWords collapses device u32 samples back into bytes.
func narrowWords(wide, dst []byte) {
	for i := range dst {
		dst[i] = wide[4*i]
	}
}

func u32Bytes(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func offsetBytes(offsets [3]uint32) []byte {
	out := make([]byte, 12)
	for i, v := range offsets {
		binary.LittleEndian.PutUint32(out[4*i:], v)
	}
	return out
}
