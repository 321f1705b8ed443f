package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/audiocore/internal/cli"
	"github.com/linuxmatters/audiocore/internal/ui"
	"github.com/linuxmatters/audiocore/pkg/audiocore"
)

var version = "0.0.1"

// CLI defines the command-line interface: one subcommand per public
// operation in pkg/audiocore.
type CLI struct {
	Version bool `short:"v" help:"Show version information"`

	Convert ConvertCmd `cmd:"" help:"Transcode an audio file to M4A/AAC-LC"`
	Trim    TrimCmd    `cmd:"" help:"Extract a time range from an audio file"`
	Splice  SpliceCmd  `cmd:"" help:"Concatenate several audio files into one M4A/AAC-LC output"`
	Wave    WaveCmd    `cmd:"" help:"Extract a waveform amplitude envelope"`
	Info    InfoCmd    `cmd:"" help:"Inspect an audio file and report its capabilities"`
}

// ConvertCmd transcodes In to Out per opts.
type ConvertCmd struct {
	In          string `arg:"" type:"existingfile"`
	Out         string `arg:"" type:"path"`
	BitRateKbps int    `default:"128" help:"Target bit rate in kbps"`
	SampleRate  int    `default:"44100" help:"Target sample rate in Hz"`
}

func (c *ConvertCmd) Run() error {
	return runWithProgress("convert", c.In, func(progress audiocore.ProgressFunc, cancel <-chan struct{}) (audiocore.ConversionResult, error) {
		return audiocore.ConvertAudio(c.In, c.Out, audiocore.ConvertOptions{
			Format:       audiocore.FormatM4A,
			BitRateKbps:  c.BitRateKbps,
			SampleRateHz: c.SampleRate,
			Progress:     progress,
			Cancel:       cancel,
		})
	})
}

// TrimCmd extracts [StartMs, EndMs) from In into Out, transcoding by
// default or copying losslessly when Lossless is set. With Lossless set,
// an input that does not support lossless copy is rejected, not
// transcoded.
type TrimCmd struct {
	In          string `arg:"" type:"existingfile"`
	Out         string `arg:"" type:"path"`
	StartMs     int64  `required:"" help:"Range start, in milliseconds"`
	EndMs       int64  `required:"" help:"Range end, in milliseconds"`
	Lossless    bool   `help:"Copy the compressed stream instead of re-encoding"`
	BitRateKbps int    `default:"128" help:"Target bit rate in kbps (ignored when --lossless)"`
	SampleRate  int    `default:"44100" help:"Target sample rate in Hz (ignored when --lossless)"`
}

func (c *TrimCmd) Run() error {
	format := audiocore.FormatM4A
	if c.Lossless {
		format = audiocore.FormatCopy
	}
	return runWithProgress("trim", c.In, func(progress audiocore.ProgressFunc, cancel <-chan struct{}) (audiocore.ConversionResult, error) {
		return audiocore.TrimAudio(c.In, c.Out, c.StartMs, c.EndMs, audiocore.ConvertOptions{
			Format:       format,
			BitRateKbps:  c.BitRateKbps,
			SampleRateHz: c.SampleRate,
			Progress:     progress,
			Cancel:       cancel,
		})
	})
}

// SpliceCmd concatenates In into Out, in argument order.
type SpliceCmd struct {
	Out         string   `arg:"" type:"path"`
	In          []string `arg:"" type:"existingfile"`
	BitRateKbps int      `default:"128" help:"Target bit rate in kbps"`
	SampleRate  int      `default:"44100" help:"Target sample rate in Hz"`
}

func (c *SpliceCmd) Run() error {
	return runWithProgress("splice", c.Out, func(progress audiocore.ProgressFunc, cancel <-chan struct{}) (audiocore.ConversionResult, error) {
		return audiocore.SpliceAudio(c.In, c.Out, audiocore.ConvertOptions{
			Format:       audiocore.FormatM4A,
			BitRateKbps:  c.BitRateKbps,
			SampleRateHz: c.SampleRate,
			Progress:     progress,
			Cancel:       cancel,
		})
	})
}

// WaveCmd extracts an amplitude envelope from In.
type WaveCmd struct {
	In               string `arg:"" type:"existingfile"`
	SamplesPerSecond int    `default:"30" help:"Number of amplitude buckets per second"`
}

func (c *WaveCmd) Run() error {
	envelope, err := audiocore.ExtractWaveform(c.In, c.SamplesPerSecond, nil, nil)
	if err != nil {
		cli.PrintError(err.Error())
		return err
	}
	fmt.Printf("%d buckets, %d Hz envelope, %d ms, %d ch\n",
		len(envelope.Amplitudes), envelope.SampleRateHz, envelope.DurationMs, envelope.Channels)
	return nil
}

// InfoCmd reports GetAudioInfo(In).
type InfoCmd struct {
	In string `arg:"" type:"existingfile"`
}

func (c *InfoCmd) Run() error {
	info := audiocore.GetAudioInfo(c.In)
	if !info.Valid {
		cli.PrintError(fmt.Sprintf("%s: %s", info.ErrorKind, info.Details))
		return fmt.Errorf("%s", info.Details)
	}
	fmt.Println(info.DiagnosticsText)
	return nil
}

// operation runs a public audiocore operation and reports progress/result
// back through a channel the caller drains.
type operation func(progress audiocore.ProgressFunc, cancel <-chan struct{}) (audiocore.ConversionResult, error)

// runWithProgress drives op inside a Bubbletea progress display, the way
// the result is reported to the terminal for every file-producing
// subcommand (convert/trim/splice).
func runWithProgress(name, inputPath string, op operation) error {
	events := make(chan tea.Msg, 64)
	progressFn := func(evt audiocore.ProgressEvent) {
		events <- ui.ProgressMsg{Progress: evt.Progress}
	}

	model := ui.NewModel(name, inputPath, events)
	program := tea.NewProgram(model)

	go func() {
		result, err := op(progressFn, nil)
		events <- ui.DoneMsg{
			OutputPath:  result.OutputPath,
			DurationMs:  result.DurationMs,
			BitRateKbps: result.BitRateKbps,
			Lossless:    result.Lossless,
			Err:         err,
		}
	}()

	finalModel, err := program.Run()
	if err != nil {
		cli.PrintError(err.Error())
		return err
	}
	if m, ok := finalModel.(ui.Model); ok && m.Result.Err != nil {
		return m.Result.Err
	}
	return nil
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("audiocore"),
		kong.Description("Audio format conversion, trimming, splicing, waveform extraction, and inspection"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	if err := ctx.Run(); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}
