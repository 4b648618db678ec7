// Command bndither dithers an image or video to a small fixed palette
// using blue-noise threshold dithering on a compute device.
//
// Exit codes: 0 success, 1 invalid blue-noise texture, 2 invalid input
// image, 3/4 grayscale dither/save failure, 5/6 color dither/save
// failure, 7 video dithering failure.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gpukit/bndither"
	"github.com/gpukit/bndither/video"
)

func main() {
	var (
		inputPath  string
		outputPath string
		bluePath   string
		gray       bool
		imageMode  bool
		videoMode  bool
		overwrite  bool
	)
	flag.StringVar(&inputPath, "i", "", "input image or video")
	flag.StringVar(&inputPath, "input", "", "input image or video")
	flag.StringVar(&outputPath, "o", "", "output destination")
	flag.StringVar(&outputPath, "output", "", "output destination")
	flag.StringVar(&bluePath, "b", "", "blue-noise texture (grayscale image)")
	flag.StringVar(&bluePath, "blue", "", "blue-noise texture (grayscale image)")
	flag.BoolVar(&gray, "g", false, "force grayscale (1-bit) dithering")
	flag.BoolVar(&gray, "gray", false, "force grayscale (1-bit) dithering")
	flag.BoolVar(&imageMode, "image", true, "dither a still image (default)")
	flag.BoolVar(&videoMode, "video", false, "dither a video")
	flag.BoolVar(&overwrite, "overwrite", false, "allow clobbering an existing output")
	flag.Parse()

	if inputPath == "" || outputPath == "" || bluePath == "" {
		fmt.Fprintln(os.Stderr, "bndither: -i, -o, and -b are required")
		flag.Usage()
		os.Exit(2)
	}
	if videoMode {
		imageMode = false
	}

	blueNoise, err := bndither.Load(bluePath)
	if err != nil || !blueNoise.Valid() || !blueNoise.Grayscale {
		fmt.Fprintf(os.Stderr, "bndither: invalid blue-noise file %q: %v\n", bluePath, err)
		os.Exit(1)
	}

	ditherer := bndither.NewDitherer()
	defer ditherer.Close()

	if imageMode {
		os.Exit(runImage(ditherer, blueNoise, inputPath, outputPath, gray, overwrite))
	}
	os.Exit(runVideo(ditherer, blueNoise, inputPath, outputPath, gray, overwrite))
}

func runImage(ditherer *bndither.Ditherer, blueNoise *bndither.Image, inputPath, outputPath string, gray, overwrite bool) int {
	input, err := bndither.Load(inputPath)
	if err != nil || !input.Valid() {
		fmt.Fprintf(os.Stderr, "bndither: invalid input image %q: %v\n", inputPath, err)
		return 2
	}

	if gray {
		output, err := ditherer.GrayscaleDither(input, blueNoise)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bndither: failed to dither %q: %v\n", inputPath, err)
			return 3
		}
		if err := output.SaveAsPNG(outputPath, overwrite); err != nil {
			fmt.Fprintf(os.Stderr, "bndither: failed to save %q: %v\n", outputPath, err)
			return 4
		}
		return 0
	}

	output, err := ditherer.ColorDither(input, blueNoise)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bndither: failed to dither %q: %v\n", inputPath, err)
		return 5
	}
	if err := output.SaveAsPNG(outputPath, overwrite); err != nil {
		fmt.Fprintf(os.Stderr, "bndither: failed to save %q: %v\n", outputPath, err)
		return 6
	}
	return 0
}

func runVideo(ditherer *bndither.Ditherer, blueNoise *bndither.Image, inputPath, outputPath string, gray, overwrite bool) int {
	v := video.New(inputPath, ditherer)
	defer v.Close()

	err := v.Dither(outputPath, blueNoise, video.Options{
		Grayscale: gray,
		Overwrite: overwrite,
	})
	if err != nil {
		log.Printf("bndither: failed to dither video %q: %v", inputPath, err)
		return 7
	}
	return 0
}
