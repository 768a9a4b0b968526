// File: internal/ocr/scanner.go
// Package ocr watches the screen for intent markers. A recognized marker is
// re-wrapped as a bracketed macro command and handed to the transcript
// processor; a bounded FIFO of fingerprints keeps a marker that stays on
// screen from firing on every poll.
package ocr

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/chat"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultHistoryLimit = 64

// markerRe matches "#intent#" or "*#intent#*" markers with an optional
// numeric action id before the bracketed command.
var markerRe = regexp.MustCompile(`(?:\*#intent#\*|#intent#)[\s+:-]*(?:(?P<action_id>\d+)[\s+:-]*)?\[(?P<command>[^\]]+)\]`)

// Scanner polls a screen-text provider for intent markers.
type Scanner struct {
	provider  schemas.ScreenTextProvider
	processor schemas.TranscriptProcessor
	cfg       config.OCRConfig
	logger    *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
	fifo []string
}

// NewScanner builds the scanner.
func NewScanner(cfg config.Interface, provider schemas.ScreenTextProvider, processor schemas.TranscriptProcessor, logger *zap.Logger) *Scanner {
	return &Scanner{
		provider:  provider,
		processor: processor,
		cfg:       cfg.OCR(),
		logger:    logger.Named("OCRScanner"),
		seen:      map[string]struct{}{},
	}
}

// Run polls until the context is canceled. Capture pacing goes through a
// rate limiter so a slow provider cannot pile up captures.
func (s *Scanner) Run(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(s.cfg.PollInterval), 1)
	s.logger.Info("OCR scanner started.",
		zap.Duration("poll_interval", s.cfg.PollInterval))
	for {
		if err := limiter.Wait(ctx); err != nil {
			s.logger.Info("OCR scanner stopping.")
			return nil
		}
		s.ScanOnce(ctx)
	}
}

// ScanOnce captures the screen once and dispatches any new markers. It
// returns the number of commands the processor accepted. Only accepted
// commands enter the dedup history, so a rejected one is retried on the
// next tick. Capture failures are logged and retried the same way; dedup
// state is untouched.
func (s *Scanner) ScanOnce(ctx context.Context) int {
	text, err := s.provider.CaptureText(ctx)
	if err != nil {
		s.logger.Warn("Screen capture failed; retrying next tick.", zap.Error(err))
		return 0
	}

	dispatched := 0
	for _, m := range markerRe.FindAllStringSubmatch(text, -1) {
		actionID := m[markerRe.SubexpIndex("action_id")]
		command := m[markerRe.SubexpIndex("command")]

		wrapped := "[macro:" + command + "]"
		cmds := chat.ParseCommands(wrapped)
		if len(cmds) == 0 {
			s.logger.Warn("Marker command did not parse.",
				zap.String("command", command))
			continue
		}

		for _, cmd := range cmds {
			if actionID != "" {
				if _, present := cmd.Args["action_id"]; !present {
					if cmd.Args == nil {
						cmd.Args = map[string]string{}
					}
					cmd.Args["action_id"] = actionID
				}
			}
			if s.isDuplicate(cmd.Fingerprint()) {
				s.logger.Debug("Duplicate marker suppressed.",
					zap.String("command", cmd.Name))
				continue
			}
			if s.processor.ProcessTranscript(renderCommand(cmd)) == 0 {
				s.logger.Warn("Marker command was not accepted; retrying next tick.",
					zap.String("command", cmd.Name))
				continue
			}
			s.record(cmd.Fingerprint())
			dispatched++
		}
	}
	return dispatched
}

// isDuplicate reports whether the fingerprint already fired.
func (s *Scanner) isDuplicate(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dup := s.seen[fingerprint]
	return dup
}

// record remembers a fired fingerprint, evicting the oldest when the FIFO
// is full. Eviction re-arms: a fingerprint pushed out can fire again.
func (s *Scanner) record(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[fingerprint]; dup {
		return
	}
	limit := s.cfg.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	for len(s.fifo) >= limit {
		oldest := s.fifo[0]
		s.fifo = s.fifo[1:]
		delete(s.seen, oldest)
	}
	s.seen[fingerprint] = struct{}{}
	s.fifo = append(s.fifo, fingerprint)
}

// renderCommand rebuilds the bracketed form with deterministic arg order.
func renderCommand(cmd chat.Command) string {
	keys := make([]string, 0, len(cmd.Args))
	for k := range cmd.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[macro:")
	b.WriteString(cmd.Name)
	for _, k := range keys {
		value := cmd.Args[k]
		if strings.ContainsAny(value, " \t") {
			value = fmt.Sprintf("%q", value)
		}
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(value)
	}
	b.WriteString("]")
	return b.String()
}
