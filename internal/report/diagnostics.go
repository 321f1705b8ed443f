package report

import (
	"fmt"
	"path/filepath"
)

// Capabilities mirrors audiotype.CapabilityFlags without importing it, so
// this package stays a leaf with no dependency on the shared type model.
type Capabilities struct {
	Convertible       bool
	Trimmable         bool
	LosslessTrimmable bool
	WaveformSupported bool
}

// DiagnosticsText renders the one-section report GetAudioInfo attaches to
// AudioInfo.DiagnosticsText: a summary line followed by an aligned metric
// table, in the teacher's report-section style (a title line, then rows).
func DiagnosticsText(path, mime, codecName string, sampleRateHz, channels, bitRateKbps int, caps Capabilities) string {
	table := &MetricTable{}
	table.Add("Codec", codecName, "")
	table.Add("Sample rate", fmt.Sprintf("%d", sampleRateHz), "Hz")
	table.Add("Channels", fmt.Sprintf("%d", channels), "")
	table.Add("Bit rate", fmt.Sprintf("%d", bitRateKbps), "kbps")
	table.Add("Convertible", fmt.Sprintf("%v", caps.Convertible), "")
	table.Add("Trimmable", fmt.Sprintf("%v", caps.Trimmable), "")
	table.Add("Lossless trimmable", fmt.Sprintf("%v", caps.LosslessTrimmable), "")
	table.Add("Waveform supported", fmt.Sprintf("%v", caps.WaveformSupported), "")

	return fmt.Sprintf("%s (%s)\n%s", filepath.Base(path), mime, table.String())
}
