package mjpeg

const (
	markerSOI = 0xD8 // Start Of Image
	markerEOI = 0xD9 // End Of Image
)

var (
	soi = []byte{0xFF, markerSOI}
	eoi = []byte{0xFF, markerEOI}
)

// IsJPEG checks the SOI marker at the beginning of b
func IsJPEG(b []byte) bool {
	return len(b) >= 2 && b[0] == 0xFF && b[1] == markerSOI
}
