package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cabinmind/copilot/internal/tts"
	"github.com/cabinmind/copilot/pkg/models"
)

// fileAudioCapture implements adapters.AudioCapture by reading raw PCM16
// frames from an io.Reader (a microphone is out of scope, §1 "no DSP").
type fileAudioCapture struct {
	source     io.ReadCloser
	reader     *bufio.Reader
	sampleRate int
	channels   int
	frameBytes int
}

func newFileAudioCapture(source io.ReadCloser, sampleRate, channels, chunkSize int) *fileAudioCapture {
	return &fileAudioCapture{
		source:     source,
		sampleRate: sampleRate,
		channels:   channels,
		frameBytes: chunkSize * channels * 2, // PCM16: 2 bytes per sample
	}
}

func (c *fileAudioCapture) Open(ctx context.Context) error {
	c.reader = bufio.NewReaderSize(c.source, c.frameBytes*4)
	return nil
}

func (c *fileAudioCapture) Read(ctx context.Context) ([]byte, error) {
	frame := make([]byte, c.frameBytes)
	n, err := io.ReadFull(c.reader, frame)
	if n > 0 {
		return frame[:n], nil
	}
	return nil, err
}

func (c *fileAudioCapture) SampleRate() int { return c.sampleRate }
func (c *fileAudioCapture) Channels() int   { return c.channels }
func (c *fileAudioCapture) Close() error    { return c.source.Close() }

// energyWakewordDetector flags a frame as a wakeword hit when its RMS energy
// crosses threshold. This is a placeholder for a trained model (§1 "audio
// feature extraction ... is modeled as Go interfaces with at least one
// reference implementation", not a DSP requirement).
type energyWakewordDetector struct {
	threshold float64
}

func newEnergyWakewordDetector(threshold float64) *energyWakewordDetector {
	if threshold <= 0 {
		threshold = 2000
	}
	return &energyWakewordDetector{threshold: threshold}
}

func (d *energyWakewordDetector) Detect(ctx context.Context, frame []byte) (bool, float64, error) {
	rms := pcm16RMS(frame)
	confidence := rms / d.threshold
	if confidence > 1 {
		confidence = 1
	}
	return rms >= d.threshold, confidence, nil
}

// energyVAD classifies a fixed-size frame as speech by RMS energy, same
// placeholder rationale as energyWakewordDetector.
type energyVAD struct {
	frameSize int
	threshold float64
}

func newEnergyVAD(frameSize int, threshold float64) *energyVAD {
	if frameSize <= 0 {
		frameSize = 640 // 20ms @ 16kHz mono PCM16
	}
	if threshold <= 0 {
		threshold = 1200
	}
	return &energyVAD{frameSize: frameSize, threshold: threshold}
}

func (v *energyVAD) FrameSize() int { return v.frameSize }

func (v *energyVAD) IsSpeech(ctx context.Context, frame []byte) (bool, error) {
	return pcm16RMS(frame) >= v.threshold, nil
}

func pcm16RMS(frame []byte) float64 {
	if len(frame) < 2 {
		return 0
	}
	var sumSquares float64
	samples := len(frame) / 2
	for i := 0; i < samples; i++ {
		sample := int16(frame[2*i]) | int16(frame[2*i+1])<<8
		sumSquares += float64(sample) * float64(sample)
	}
	return math.Sqrt(sumSquares / float64(samples))
}

// whisperRecognizer implements adapters.SpeechRecognizer against OpenAI's
// Whisper transcription API, fed raw PCM16 wrapped in a WAV header.
type whisperRecognizer struct {
	client     *openai.Client
	model      string
	sampleRate int
	channels   int
}

func newWhisperRecognizer(apiKey, baseURL, model string, sampleRate, channels int) *whisperRecognizer {
	if model == "" {
		model = openai.Whisper1
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &whisperRecognizer{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (r *whisperRecognizer) Recognize(ctx context.Context, speech []byte) (string, float64, error) {
	wav := wrapPCM16AsWAV(speech, r.sampleRate, r.channels)
	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		Reader:   wav,
		FilePath: "utterance.wav",
	})
	if err != nil {
		return "", 0, err
	}
	return resp.Text, 1, nil
}

// wrapPCM16AsWAV prepends a minimal canonical WAV header so raw PCM16 frames
// can be handed to an API that expects a file format, not a stream.
func wrapPCM16AsWAV(pcm []byte, sampleRate, channels int) *bytesReader {
	const bitsPerSample = 16
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 0, 44+dataSize)
	buf = append(buf, "RIFF"...)
	buf = appendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)
	buf = append(buf, "fmt "...)
	buf = appendUint32(buf, 16)
	buf = appendUint16(buf, 1) // PCM
	buf = appendUint16(buf, uint16(channels))
	buf = appendUint32(buf, uint32(sampleRate))
	buf = appendUint32(buf, uint32(byteRate))
	buf = appendUint16(buf, uint16(blockAlign))
	buf = appendUint16(buf, bitsPerSample)
	buf = append(buf, "data"...)
	buf = appendUint32(buf, uint32(dataSize))
	buf = append(buf, pcm...)

	return &bytesReader{data: buf}
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

// bytesReader adapts a byte slice to io.Reader without importing bytes just
// for this one call site's Reader requirement.
type bytesReader struct {
	data []byte
	pos  int
}

func (r *bytesReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// ttsSpeaker implements adapters.Speaker by wrapping internal/tts's
// provider-fallback synthesis and logging where the audio landed (playback
// hardware is out of scope).
type ttsSpeaker struct {
	cfg    *tts.Config
	logger *slog.Logger
}

func newTTSSpeaker(cfg *tts.Config, logger *slog.Logger) *ttsSpeaker {
	return &ttsSpeaker{cfg: cfg, logger: logger}
}

func (s *ttsSpeaker) Speak(ctx context.Context, text string) error {
	if s.cfg == nil || !s.cfg.Enabled {
		s.logger.Info("tts disabled, skipping playback", "text", text)
		return nil
	}
	result, err := tts.TextToSpeech(ctx, s.cfg, text, "console")
	if err != nil {
		return err
	}
	s.logger.Info("spoke response", "provider", result.Provider, "audio_path", result.AudioPath, "latency_ms", result.LatencyMs)
	return nil
}

// consoleDisplay implements adapters.DisplaySink by rendering
// display-relevant events to stdout as single JSON lines.
type consoleDisplay struct {
	out io.Writer
}

func newConsoleDisplay(out io.Writer) *consoleDisplay {
	if out == nil {
		out = os.Stdout
	}
	return &consoleDisplay{out: out}
}

func (d *consoleDisplay) Render(ctx context.Context, ev models.Event) error {
	line := map[string]any{"kind": ev.Kind, "source": ev.Source}
	switch {
	case ev.StateChange != nil:
		line["from"] = ev.StateChange.From
		line["to"] = ev.StateChange.To
	case ev.Wakeword != nil:
		line["confidence"] = ev.Wakeword.Confidence
	case ev.ASRResult != nil:
		line["text"] = ev.ASRResult.Text
	case ev.AgentResp != nil:
		line["agent"] = ev.AgentResp.Agent
		line["message"] = ev.AgentResp.Message
		line["status"] = ev.AgentResp.Status
	}
	payload, err := json.Marshal(line)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(d.out, string(payload))
	return err
}
