package nap

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/nupi-ai/plugin-tts-podcast/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

// remoteAdapter plays scripted responses and records requests.
type remoteAdapter struct {
	napv1.UnimplementedTextToSpeechServiceServer

	responses []*napv1.SynthesisResponse
	err       error
	requests  chan *napv1.StreamSynthesisRequest

	// holdOpen keeps the stream open after the scripted responses until the
	// client goes away, then closes released.
	holdOpen bool
	released chan struct{}
}

func (r *remoteAdapter) StreamSynthesis(req *napv1.StreamSynthesisRequest, stream napv1.TextToSpeechService_StreamSynthesisServer) error {
	r.requests <- req
	for _, resp := range r.responses {
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
	if r.holdOpen {
		<-stream.Context().Done()
		close(r.released)
	}
	return r.err
}

func dialRemote(t *testing.T, remote *remoteAdapter) *Synthesizer {
	t.Helper()
	buf := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	napv1.RegisterTextToSpeechServiceServer(srv, remote)
	go srv.Serve(buf)
	t.Cleanup(srv.Stop)

	synth, conn, err := Dial("passthrough:///bufconn", nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return buf.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return synth
}

func chunk(data []byte, seq uint64) *napv1.SynthesisResponse {
	return &napv1.SynthesisResponse{
		Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING,
		Chunk:  &napv1.AudioChunk{Data: data, Sequence: seq, First: seq == 1},
	}
}

func TestSynthesizeCollectsChunks(t *testing.T) {
	remote := &remoteAdapter{
		requests: make(chan *napv1.StreamSynthesisRequest, 2),
		responses: []*napv1.SynthesisResponse{
			{Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_STARTED},
			chunk(make([]byte, 4096), 1),
			chunk(make([]byte, 904), 2),
			{Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED},
		},
	}
	synth := dialRemote(t, remote)

	data, err := synth.Synthesize(context.Background(), "Hello", "voice-a")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	clip, err := audio.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if clip.Frames() != 2500 {
		t.Errorf("Frames = %d, want 2500", clip.Frames())
	}

	req := <-remote.requests
	if req.GetText() != "Hello" {
		t.Errorf("Text = %q", req.GetText())
	}
	if req.GetMetadata()[adapterinfo.MetaVoiceID] != "voice-a" {
		t.Errorf("metadata = %v, want voice id", req.GetMetadata())
	}
	if req.GetSessionId() == "" || req.GetStreamId() == "" {
		t.Error("session and stream ids should be set")
	}

	if _, err := synth.Synthesize(context.Background(), "Again", "voice-a"); err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}
	second := <-remote.requests
	if second.GetSessionId() != req.GetSessionId() {
		t.Error("turns of one synthesizer should share a session id")
	}
	if second.GetStreamId() == req.GetStreamId() {
		t.Error("each turn should get its own stream id")
	}
}

func TestSynthesizeRemoteError(t *testing.T) {
	remote := &remoteAdapter{
		requests: make(chan *napv1.StreamSynthesisRequest, 1),
		responses: []*napv1.SynthesisResponse{
			{Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR, ErrorMessage: "voice not found"},
		},
	}
	synth := dialRemote(t, remote)

	_, err := synth.Synthesize(context.Background(), "Hello", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, tts.ErrAuthOrQuota) {
		t.Error("remote ERROR status should not be auth/quota")
	}
}

func TestSynthesizeStatusCodes(t *testing.T) {
	tests := []struct {
		code      codes.Code
		wantAuth  bool
		wantLimit bool
	}{
		{codes.Unauthenticated, true, false},
		{codes.PermissionDenied, true, false},
		{codes.ResourceExhausted, false, true},
		{codes.Unavailable, false, false},
		{codes.Internal, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			remote := &remoteAdapter{
				requests: make(chan *napv1.StreamSynthesisRequest, 1),
				err:      status.Error(tt.code, "rejected"),
			}
			synth := dialRemote(t, remote)

			_, err := synth.Synthesize(context.Background(), "Hello", "v")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, tts.ErrAuthOrQuota); got != tt.wantAuth {
				t.Errorf("auth/quota = %v, want %v (err=%v)", got, tt.wantAuth, err)
			}
			if got := errors.Is(err, tts.ErrRateLimited); got != tt.wantLimit {
				t.Errorf("rate limited = %v, want %v (err=%v)", got, tt.wantLimit, err)
			}
		})
	}
}

func TestSynthesizeNoAudio(t *testing.T) {
	remote := &remoteAdapter{
		requests: make(chan *napv1.StreamSynthesisRequest, 1),
		responses: []*napv1.SynthesisResponse{
			{Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_STARTED},
			{Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED},
		},
	}
	synth := dialRemote(t, remote)

	data, err := synth.Synthesize(context.Background(), "Hello", "v")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if data != nil {
		t.Errorf("got %d bytes, want nil", len(data))
	}
}

func TestSynthesizeReleasesStreamAfterFinished(t *testing.T) {
	remote := &remoteAdapter{
		requests: make(chan *napv1.StreamSynthesisRequest, 1),
		responses: []*napv1.SynthesisResponse{
			chunk(make([]byte, 320), 1),
			{Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED},
		},
		holdOpen: true,
		released: make(chan struct{}),
	}
	synth := dialRemote(t, remote)

	if _, err := synth.Synthesize(context.Background(), "Hello", "v"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	select {
	case <-remote.released:
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after FINISHED")
	}
}
