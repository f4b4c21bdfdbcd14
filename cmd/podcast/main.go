// Command podcast produces a two-voice podcast WAV from a topic or a script file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/nupi-ai/plugin-tts-podcast/internal/app"
	"github.com/nupi-ai/plugin-tts-podcast/internal/audio"
	"github.com/nupi-ai/plugin-tts-podcast/internal/config"
	"github.com/nupi-ai/plugin-tts-podcast/internal/podcast"
	"github.com/nupi-ai/plugin-tts-podcast/internal/script"
	"github.com/nupi-ai/plugin-tts-podcast/internal/telemetry"
)

const wrapWidth = 76

var (
	hostStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	guestStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	labelStyle = lipgloss.NewStyle().Faint(true)
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func main() {
	topic := flag.String("topic", "", "topic to generate a script for")
	scriptFile := flag.String("script", "", "path to an existing Host:/Guest: script (skips generation)")
	out := flag.String("out", "podcast.wav", "output WAV file")
	configPath := flag.String("config", "", "path to a JSON config file (defaults to NUPI_ADAPTER_CONFIG)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *topic, *scriptFile, *out, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, topic, scriptFile, out, configPath string) error {
	if (topic == "") == (scriptFile == "") {
		return errors.New("exactly one of -topic or -script is required")
	}

	cfg, err := loadConfig(configPath, scriptFile == "")
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.LogLevel, os.Stderr)
	comps, err := app.Build(cfg, logger, telemetry.NewRecorder(logger))
	if err != nil {
		return err
	}
	defer comps.Close()

	start := time.Now()
	var (
		turns []script.Turn
		res   podcast.Result
	)
	if scriptFile != "" {
		raw, err := os.ReadFile(scriptFile)
		if err != nil {
			return fmt.Errorf("read script: %w", err)
		}
		if turns, err = comps.Pipeline.Segment(string(raw)); err != nil {
			return err
		}
	} else {
		if _, turns, err = comps.Pipeline.GenerateScript(ctx, topic); err != nil {
			return err
		}
	}

	printScript(os.Stdout, turns)

	res, err = comps.Pipeline.Assemble(ctx, turns)
	if err != nil {
		var asmErr *podcast.AssemblyError
		if errors.As(err, &asmErr) {
			for _, f := range asmErr.Failures {
				fmt.Fprintln(os.Stderr, labelStyle.Render(f.Error()))
			}
		}
		return err
	}

	if err := os.WriteFile(out, res.Audio, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	fmt.Fprintln(os.Stdout, summary(out, res, time.Since(start)))
	return nil
}

// loadConfig reads the adapter configuration. When the script comes from a
// file no text generator is needed, so the stub generator stands in unless the
// environment says otherwise.
func loadConfig(path string, needGenerator bool) (config.Config, error) {
	raw := ""
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("read config: %w", err)
		}
		raw = string(data)
	}
	return config.Loader{Lookup: cliLookup(os.LookupEnv, raw, needGenerator)}.Load()
}

func cliLookup(env func(string) (string, bool), raw string, needGenerator bool) func(string) (string, bool) {
	return func(key string) (string, bool) {
		switch key {
		case "NUPI_ADAPTER_CONFIG":
			if raw != "" {
				return raw, true
			}
		case "NUPI_ADAPTER_USE_STUB_GENERATOR":
			if v, ok := env(key); ok || needGenerator {
				return v, ok
			}
			return "true", true
		}
		return env(key)
	}
}

func printScript(w io.Writer, turns []script.Turn) {
	for _, t := range turns {
		style := hostStyle
		if t.Speaker == script.Guest {
			style = guestStyle
		}
		fmt.Fprintln(w, style.Render(t.Speaker.String()+":"))
		fmt.Fprintln(w, wordwrap.String(t.Text, wrapWidth))
		fmt.Fprintln(w)
	}
}

func summary(out string, res podcast.Result, elapsed time.Duration) string {
	duration := "unknown"
	if clip, err := audio.Decode(res.Audio); err == nil {
		duration = clip.Duration().Round(100 * time.Millisecond).String()
	}
	lines := fmt.Sprintf("%s %s\n%s %s\n%s %d of %d (%d skipped)\n%s %s",
		labelStyle.Render("file    "), out,
		labelStyle.Render("duration"), duration,
		labelStyle.Render("turns   "), res.Manifest.Included, res.Manifest.Total, res.Manifest.Skipped,
		labelStyle.Render("took    "), elapsed.Round(time.Millisecond),
	)
	return boxStyle.Render(lines)
}
