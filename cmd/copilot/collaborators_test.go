package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/cabinmind/copilot/pkg/models"
)

func TestWrapPCM16AsWAVHeaderFields(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0} // three int16 samples
	r := wrapPCM16AsWAV(pcm, 16000, 1)

	header := make([]byte, 44)
	if _, err := io.ReadFull(r, header); err != nil {
		t.Fatalf("read header: %v", err)
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		t.Fatalf("expected RIFF/WAVE markers, got %q / %q", header[0:4], header[8:12])
	}
	if string(header[12:16]) != "fmt " || string(header[36:40]) != "data" {
		t.Fatalf("expected fmt /data chunk markers, got %q / %q", header[12:16], header[36:40])
	}

	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	if sampleRate != 16000 {
		t.Errorf("expected sample rate 16000 in header, got %d", sampleRate)
	}
	channels := binary.LittleEndian.Uint16(header[22:24])
	if channels != 1 {
		t.Errorf("expected 1 channel in header, got %d", channels)
	}
	dataSize := binary.LittleEndian.Uint32(header[40:44])
	if int(dataSize) != len(pcm) {
		t.Errorf("expected data chunk size %d, got %d", len(pcm), dataSize)
	}

	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read remaining pcm: %v", err)
	}
	if string(rest) != string(pcm) {
		t.Errorf("expected pcm bytes to follow the header unmodified, got %v", rest)
	}
}

func TestPCM16RMSSilenceIsZero(t *testing.T) {
	silence := make([]byte, 640)
	if got := pcm16RMS(silence); got != 0 {
		t.Errorf("expected zero RMS for all-zero frame, got %f", got)
	}
}

func TestPCM16RMSShortFrameIsZero(t *testing.T) {
	if got := pcm16RMS([]byte{1}); got != 0 {
		t.Errorf("expected zero RMS for a frame too short to hold a sample, got %f", got)
	}
}

func TestEnergyWakewordDetectorCrossesThreshold(t *testing.T) {
	d := newEnergyWakewordDetector(100)

	loud := make([]byte, 4)
	binary.LittleEndian.PutUint16(loud[0:2], 5000)
	binary.LittleEndian.PutUint16(loud[2:4], 5000)

	hit, confidence, err := d.Detect(context.Background(), loud)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Errorf("expected a loud frame to cross the wakeword threshold")
	}
	if confidence != 1 {
		t.Errorf("expected confidence to clamp at 1, got %f", confidence)
	}

	quiet := make([]byte, 4)
	hit, _, err = d.Detect(context.Background(), quiet)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hit {
		t.Errorf("expected silence to not trigger the wakeword detector")
	}
}

func TestEnergyVADDefaultsFrameSize(t *testing.T) {
	v := newEnergyVAD(0, 0)
	if v.FrameSize() != 640 {
		t.Errorf("expected default frame size 640, got %d", v.FrameSize())
	}
}

func TestFileAudioCaptureReadsFixedSizeFrames(t *testing.T) {
	data := make([]byte, 10)
	for i := range data {
		data[i] = byte(i)
	}
	capture := newFileAudioCapture(io.NopCloser(strings.NewReader(string(data))), 16000, 1, 2)
	if err := capture.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	frame, err := capture.Read(context.Background())
	if err != nil {
		t.Fatalf("unexpected error reading first frame: %v", err)
	}
	if len(frame) != 4 {
		t.Fatalf("expected a 4-byte frame (chunkSize 2 * channels 1 * 2 bytes), got %d", len(frame))
	}

	if _, err := capture.Read(context.Background()); err != nil {
		t.Fatalf("unexpected error reading second frame: %v", err)
	}

	if _, err := capture.Read(context.Background()); err == nil {
		t.Error("expected an error once the source is exhausted short of a full frame")
	}
}

func TestConsoleDisplayRendersAgentResponseAsJSONLine(t *testing.T) {
	var buf strings.Builder
	d := newConsoleDisplay(&buf)

	ev := models.Event{
		Kind:   "agent_response",
		Source: "agent",
		AgentResp: &models.AgentResponsePayload{
			Agent:   "chat_agent",
			Message: "hello there",
			Status:  models.ResponseSuccess,
		},
	}
	if err := d.Render(context.Background(), ev); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line); err != nil {
		t.Fatalf("expected a single valid JSON line, got %q: %v", buf.String(), err)
	}
	if line["agent"] != "chat_agent" || line["message"] != "hello there" {
		t.Errorf("unexpected rendered line: %+v", line)
	}
}
