package protocol

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const command = "command"

var (
	fr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protocol_frames_received_count",
		Help: "The number of received frames (per command).",
	}, []string{command})
	fc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "protocol_frame_checksum_error_count",
		Help: "The number of frames rejected because of a checksum mismatch.",
	})
	fl = promauto.NewCounter(prometheus.CounterOpts{
		Name: "protocol_frame_length_error_count",
		Help: "The number of frame candidates rejected because of an invalid declared length.",
	})
	fp = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "protocol_frame_payload_error_count",
		Help: "The number of frames with an undecodable payload (per command).",
	}, []string{command})
)

func framesReceived(c string) prometheus.Counter {
	return fr.With(prometheus.Labels{command: c})
}

func errFrameChecksum() prometheus.Counter {
	return fc
}

func errFrameLength() prometheus.Counter {
	return fl
}

func errFramePayload(c string) prometheus.Counter {
	return fp.With(prometheus.Labels{command: c})
}
