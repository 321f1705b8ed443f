package codec

import (
	"unsafe"

	ffmpeg "github.com/csnewman/ffmpeg-go"
)

// setPacketData copies data into pkt's own payload buffer, replacing
// whatever (unreferenced) buffer it currently holds.
func setPacketData(pkt *ffmpeg.AVPacket, data []byte) error {
	if _, err := ffmpeg.AVNewPacket(pkt, len(data)); err != nil {
		return err
	}
	if len(data) > 0 {
		copy(unsafe.Slice((*byte)(pkt.Data()), len(data)), data)
	}
	return nil
}

// packetDataBytes views pkt's payload as a byte slice.
func packetDataBytes(pkt *ffmpeg.AVPacket) []byte {
	return ptrBytes(pkt.Data(), pkt.Size())
}

// ptrBytes views an unsafe.Pointer/length pair (as returned by libav
// plane/extradata accessors) as a byte slice.
func ptrBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}
