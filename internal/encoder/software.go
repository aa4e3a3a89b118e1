package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
)

// encodeSoftware is the CPU fallback: wrap the locked BGRA bytes in a
// bitmap image and encode with image/jpeg at the same quality setting the
// hardware session uses.
func encodeSoftware(bgra []byte, width, height, stride int, quality float64) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bgraToRGBA(bgra, img.Pix, stride, img.Stride, width, height)

	buf := new(bytes.Buffer)
	opts := &jpeg.Options{Quality: qualityToJPEGScale(quality)}
	if err := jpeg.Encode(buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// qualityToJPEGScale maps the 0.1-1.0 quality float to image/jpeg's 1-100
// integer scale.
func qualityToJPEGScale(quality float64) int {
	q := int(quality * 100)
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}

// bgraToRGBA copies a BGRA, premultiplied, little-endian source buffer into
// a standard RGBA destination, swapping the R/B channels row by row to
// respect independent source/destination strides.
func bgraToRGBA(src, dst []byte, srcStride, dstStride, width, height int) {
	for y := 0; y < height; y++ {
		srcRow := y * srcStride
		dstRow := y * dstStride
		for x := 0; x < width; x++ {
			si := srcRow + x*4
			di := dstRow + x*4
			if si+4 > len(src) || di+4 > len(dst) {
				return
			}
			dst[di+0] = src[si+2] // R (source byte 2)
			dst[di+1] = src[si+1] // G
			dst[di+2] = src[si+0] // B (source byte 0)
			dst[di+3] = src[si+3] // A
		}
	}
}
