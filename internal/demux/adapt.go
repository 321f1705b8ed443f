package demux

import (
	"unsafe"

	ffmpeg "github.com/csnewman/ffmpeg-go"
)

// ptrBytes views an unsafe.Pointer/length pair (as returned by libav
// plane/extradata accessors) as a byte slice.
func ptrBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// packetDataBytes views pkt's payload as a byte slice.
func packetDataBytes(pkt *ffmpeg.AVPacket) []byte {
	return ptrBytes(pkt.Data(), pkt.Size())
}
