package mux

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

// setExtradata copies data into a freshly-allocated av_malloc'd buffer and
// attaches it to par, matching the ownership libavformat expects for
// AVCodecParameters.extradata.
func setExtradata(par *ffmpeg.AVCodecParameters, data []byte) {
	if len(data) == 0 {
		return
	}
	ptr := ffmpeg.AVMallocz(uint64(len(data)))
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	par.SetExtradata(ptr)
	par.SetExtradataSize(len(data))
}
