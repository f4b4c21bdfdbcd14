// Package podcast assembles speaker turns into a single multi-voice track and
// drives the topic → script → audio pipeline.
package podcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
	"github.com/nupi-ai/plugin-tts-podcast/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-podcast/internal/tts"
)

const (
	// DefaultConcurrency bounds in-flight synthesis calls per assembly run.
	DefaultConcurrency = 3
)

// Manifest counts how many turns made it into the track.
type Manifest struct {
	Total    int `json:"total"`
	Included int `json:"included"`
	Skipped  int `json:"skipped"`
}

// Result is a finished podcast track.
type Result struct {
	Audio    []byte
	Manifest Manifest
	Failures []TurnError
	// Included lists the indexes of the turns present in Audio, in order.
	Included []int
}

// AssemblerOptions tunes an Assembler.
type AssemblerOptions struct {
	// Concurrency bounds parallel synthesis calls. Zero uses DefaultConcurrency.
	Concurrency int
	// TurnTimeout bounds a single synthesis call. Zero means no extra limit.
	TurnTimeout time.Duration
}

// Assembler synthesizes turns and joins them in order.
type Assembler struct {
	synth   tts.Synthesizer
	codec   Codec
	opts    AssemblerOptions
	log     *slog.Logger
	metrics *telemetry.Recorder
}

// NewAssembler returns an Assembler using synth and codec.
func NewAssembler(synth tts.Synthesizer, codec Codec, opts AssemblerOptions, logger *slog.Logger, metrics *telemetry.Recorder) *Assembler {
	if synth == nil {
		panic("podcast: synthesizer must not be nil")
	}
	if codec == nil {
		codec = WAVCodec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Assembler{
		synth:   synth,
		codec:   codec,
		opts:    opts,
		log:     logger.With("component", "assembler"),
		metrics: metrics,
	}
}

// turnOutcome is the per-index slot filled by synthesis workers.
type turnOutcome struct {
	clip Clip
	err  error
}

// Assemble renders turns with voices and returns the encoded track. Turns
// that fail to synthesize or decode are skipped and reported in the result;
// the run fails with *AssemblyError only when no turn produced audio. A
// synthesis error wrapping tts.ErrAuthOrQuota aborts the run; a rate-limited
// turn (tts.ErrRateLimited) is skipped like any other failure.
func (a *Assembler) Assemble(ctx context.Context, turns []script.Turn, voices VoiceAssignment) (Result, error) {
	if len(turns) == 0 {
		return Result{}, ErrNoSegments
	}

	ctx, span := a.metrics.StartSpan(ctx, "podcast.assemble", attribute.Int("turns", len(turns)))
	defer span.End()

	start := time.Now()
	outcomes := make([]turnOutcome, len(turns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, turn := range turns {
		g.Go(func() error {
			clip, err := a.renderTurn(gctx, i, turn, voices.For(turn.Speaker))
			if errors.Is(err, tts.ErrAuthOrQuota) {
				return err
			}
			outcomes[i] = turnOutcome{clip: clip, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis rejected")
		a.metrics.RecordAssembly(ctx, "rejected")
		a.log.Error("synthesis provider rejected request, aborting", "error", err)
		return Result{}, err
	}

	// Workers finish in any order; join strictly by turn index.
	res := Result{Manifest: Manifest{Total: len(turns)}}
	var track Clip
	for i, out := range outcomes {
		voiceID := voices.For(turns[i].Speaker)
		err := out.err
		if err == nil {
			if track == nil {
				track = out.clip
			} else if joined, cerr := a.codec.Concat(track, out.clip); cerr != nil {
				err = fmt.Errorf("concat: %w", cerr)
			} else {
				track = joined
			}
		}
		if err != nil {
			res.Failures = append(res.Failures, TurnError{Index: i, Speaker: turns[i].Speaker, VoiceID: voiceID, Err: err})
			a.log.Warn("skipping turn", "index", i, "speaker", turns[i].Speaker.String(), "voice_id", voiceID, "error", err)
			continue
		}
		res.Included = append(res.Included, i)
	}
	res.Manifest.Included = len(res.Included)
	res.Manifest.Skipped = res.Manifest.Total - res.Manifest.Included

	span.SetAttributes(
		attribute.Int("turns.included", res.Manifest.Included),
		attribute.Int("turns.skipped", res.Manifest.Skipped),
	)

	if track == nil {
		a.metrics.RecordAssembly(ctx, "failed")
		err := &AssemblyError{Manifest: res.Manifest, Failures: res.Failures}
		span.RecordError(err)
		span.SetStatus(codes.Error, "no audio")
		return Result{}, err
	}

	data, err := a.codec.Encode(track)
	if err != nil {
		a.metrics.RecordAssembly(ctx, "failed")
		span.RecordError(err)
		return Result{}, fmt.Errorf("podcast: encode track: %w", err)
	}
	res.Audio = data

	a.metrics.RecordAssembly(ctx, "ok")
	a.log.Info("podcast assembled",
		"turns_total", res.Manifest.Total,
		"turns_included", res.Manifest.Included,
		"turns_skipped", res.Manifest.Skipped,
		"bytes", len(data),
		"duration_sec", time.Since(start).Seconds(),
	)
	return res, nil
}

// renderTurn synthesizes and decodes one turn.
func (a *Assembler) renderTurn(ctx context.Context, index int, turn script.Turn, voiceID string) (Clip, error) {
	start := time.Now()
	clip, err := a.synthesizeTurn(ctx, turn.Text, voiceID)

	outcome := "included"
	if err != nil {
		outcome = "skipped"
	}
	a.metrics.RecordTurn(ctx, turn.Speaker.String(), outcome, time.Since(start))
	a.log.Debug("turn rendered",
		"index", index,
		"speaker", turn.Speaker.String(),
		"voice_id", voiceID,
		"text_length", len(turn.Text),
		"outcome", outcome,
	)
	return clip, err
}

func (a *Assembler) synthesizeTurn(ctx context.Context, text, voiceID string) (Clip, error) {
	if a.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.TurnTimeout)
		defer cancel()
	}

	data, err := a.synth.Synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("synthesize: provider returned no audio")
	}
	clip, err := a.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if clip == nil || clip.Frames() == 0 {
		return nil, fmt.Errorf("decode: clip is empty")
	}
	return clip, nil
}
