package stt

import (
	"context"
	"errors"
	"testing"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"

	"github.com/lexiqai/misa/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DeepgramAPIKey:             "test-key",
		DeepgramModel:              "nova-2",
		DeepgramLanguage:           "en-US",
		AudioSampleRate:            16000,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		ReconnectMaxAttempts:       1,
		ReconnectBackoff:           10,
	}
}

func message(text string, final bool) *msginterfaces.MessageResponse {
	return &msginterfaces.MessageResponse{
		Channel: msginterfaces.Channel{
			Alternatives: []msginterfaces.Alternative{{
				Transcript: text,
				Confidence: 0.9,
				Words: []msginterfaces.Word{
					{Word: "hello", Start: 0.5, End: 0.9},
					{Word: "there", Start: 1.0, End: 1.4},
				},
			}},
		},
		IsFinal: final,
	}
}

func TestDeepgramClient_HandleMessage(t *testing.T) {
	d := NewDeepgramClient(testConfig())
	defer d.Close()

	d.handleDeepgramMessage(message("hello there", true))

	select {
	case r := <-d.Results():
		if r.Text != "hello there" || !r.IsFinal {
			t.Errorf("Unexpected result %+v", r)
		}
		if r.StartTime != 0.5 {
			t.Errorf("Expected start 0.5 from words, got %v", r.StartTime)
		}
		if r.Duration < 0.89 || r.Duration > 0.91 {
			t.Errorf("Expected duration ~0.9 from words, got %v", r.Duration)
		}
	default:
		t.Fatal("Expected a result on the channel")
	}
}

func TestDeepgramClient_IgnoresEmptyTranscripts(t *testing.T) {
	d := NewDeepgramClient(testConfig())
	defer d.Close()

	d.handleDeepgramMessage(nil)
	d.handleDeepgramMessage(&msginterfaces.MessageResponse{})
	d.handleDeepgramMessage(message("", true))

	select {
	case r := <-d.Results():
		t.Errorf("Expected no result, got %+v", r)
	default:
	}
}

func TestDeepgramClient_SpeechStarted(t *testing.T) {
	d := NewDeepgramClient(testConfig())
	defer d.Close()

	d.handleSpeechStarted()

	r := <-d.Results()
	if !r.SpeechStarted || r.Text != "" {
		t.Errorf("Expected activity event, got %+v", r)
	}
}

func TestDeepgramClient_PublishDropsWhenFull(t *testing.T) {
	d := NewDeepgramClient(testConfig())
	defer d.Close()

	for i := 0; i < cap(d.results); i++ {
		if !d.publish(&TranscriptionResult{Text: "x"}) {
			t.Fatalf("Expected publish %d to succeed", i)
		}
	}
	if d.publish(&TranscriptionResult{Text: "overflow"}) {
		t.Error("Expected publish to drop when the channel is full")
	}
}

func TestDeepgramClient_SendAudioInactive(t *testing.T) {
	d := NewDeepgramClient(testConfig())
	defer d.Close()

	err := d.SendAudio([]byte{0, 0})
	if !errors.Is(err, errNotActive) {
		t.Errorf("Expected errNotActive, got %v", err)
	}
	if ok, _ := d.HealthCheck(context.Background()); ok {
		t.Error("Expected unhealthy before Start")
	}
}
