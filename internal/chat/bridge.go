// File: internal/chat/bridge.go
package chat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/deskpilot-cli/api/schemas"
	"github.com/xkilldash9x/deskpilot-cli/internal/config"
	"github.com/xkilldash9x/deskpilot-cli/internal/nlp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultFilenameAttempts = 100

// Bridge converts chat lines and transcripts into intent files. It
// implements schemas.TranscriptProcessor for the OCR scanner.
type Bridge struct {
	intentsCfg config.IntentsConfig
	chatCfg    config.ChatConfig
	router     *nlp.Router
	logger     *zap.Logger
	now        func() time.Time
}

var _ schemas.TranscriptProcessor = (*Bridge)(nil)

// NewBridge builds the bridge. router may be nil when no intent manifest is
// configured; the natural-language fallback is then disabled.
func NewBridge(cfg config.Interface, router *nlp.Router, logger *zap.Logger) *Bridge {
	return &Bridge{
		intentsCfg: cfg.Intents(),
		chatCfg:    cfg.Chat(),
		router:     router,
		logger:     logger.Named("ChatBridge"),
		now:        time.Now,
	}
}

// ProcessTranscript parses every bracketed command in text and emits intent
// files for the mapped ones. It returns the number of files written.
// Unknown commands are logged and dropped, never fatal.
func (b *Bridge) ProcessTranscript(text string) int {
	written := 0
	for _, cmd := range ParseCommands(text) {
		switch {
		case cmd.Prefix == "agent":
			// Built-ins are interactive-only; in a transcript they are noise.
			b.logger.Debug("Skipping agent command in transcript.",
				zap.String("command", cmd.Name))
		case b.isMapped(cmd.Name):
			if _, err := b.EmitIntent(cmd.Name, cmd.Args); err != nil {
				b.logger.Error("Writing intent file failed.",
					zap.String("intent", cmd.Name), zap.Error(err))
				continue
			}
			written++
		default:
			b.logger.Warn("Dropping unmapped command.",
				zap.String("command", cmd.Name))
		}
	}
	return written
}

// HandleLine processes one interactive line and returns the text to show
// the user.
func (b *Bridge) HandleLine(line string) string {
	commands := ParseCommands(line)
	if len(commands) == 0 {
		return b.suggest(line)
	}

	var replies []string
	for _, cmd := range commands {
		switch {
		case cmd.Prefix == "agent" && cmd.Name == "list_intents":
			replies = append(replies, b.listIntents())
		case cmd.Prefix == "agent":
			replies = append(replies, fmt.Sprintf("unknown agent command %q", cmd.Name))
		case b.isMapped(cmd.Name):
			path, err := b.EmitIntent(cmd.Name, cmd.Args)
			if err != nil {
				replies = append(replies, fmt.Sprintf("failed to queue %s: %v", cmd.Name, err))
				continue
			}
			replies = append(replies, fmt.Sprintf("queued %s -> %s", cmd.Name, filepath.Base(path)))
		default:
			replies = append(replies, fmt.Sprintf("no recipe is mapped for %q", cmd.Name))
		}
	}
	return strings.Join(replies, "\n")
}

// suggest runs the natural-language router over a command-less line. The
// result is informational only; nothing is queued.
func (b *Bridge) suggest(line string) string {
	if b.router == nil || strings.TrimSpace(line) == "" {
		return ""
	}
	proposal, ok := b.router.Route(line)
	if !ok {
		return "no matching intent; try [macro:<name> key=value] or [agent:list_intents]"
	}
	var args []string
	for k, v := range proposal.Args {
		args = append(args, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(args)
	suggestion := fmt.Sprintf("[macro:%s", proposal.Intent)
	if len(args) > 0 {
		suggestion += " " + strings.Join(args, " ")
	}
	suggestion += "]"
	b.logger.Info("Routing suggestion offered.",
		zap.String("intent", proposal.Intent), zap.Int("score", proposal.Score))
	return "did you mean: " + suggestion
}

func (b *Bridge) listIntents() string {
	if len(b.intentsCfg.Map) == 0 {
		return "no intents are configured"
	}
	names := make([]string, 0, len(b.intentsCfg.Map))
	for name := range b.intentsCfg.Map {
		names = append(names, name)
	}
	sort.Strings(names)

	var bld strings.Builder
	bld.WriteString("configured intents:")
	for _, name := range names {
		bld.WriteString("\n  ")
		bld.WriteString(name)
		bld.WriteString(" -> ")
		bld.WriteString(b.intentsCfg.Map[name].Recipe)
	}
	return bld.String()
}

func (b *Bridge) isMapped(name string) bool {
	_, ok := b.intentsCfg.Map[name]
	return ok
}

// EmitIntent serializes one intent document into the intents directory
// under a timestamp+sequence name. Filename allocation is bounded; running
// out of sequence slots within one timestamp is an error.
func (b *Bridge) EmitIntent(name string, args map[string]string) (string, error) {
	if err := os.MkdirAll(b.intentsCfg.Directory, 0o755); err != nil {
		return "", fmt.Errorf("creating intents directory: %w", err)
	}

	payload := schemas.IntentPayload{Intent: name}
	if len(args) > 0 {
		payload.Args = make(map[string]any, len(args))
		for k, v := range args {
			payload.Args[k] = v
		}
	}
	doc, err := yaml.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serializing intent %q: %w", name, err)
	}

	attempts := b.chatCfg.FilenameAttempts
	if attempts <= 0 {
		attempts = defaultFilenameAttempts
	}
	stamp := b.now().Format("20060102150405")
	for seq := 0; seq < attempts; seq++ {
		path := filepath.Join(b.intentsCfg.Directory,
			fmt.Sprintf("%s_%s_%03d.yml", stamp, name, seq))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue
			}
			return "", fmt.Errorf("creating intent file: %w", err)
		}
		if _, err := f.Write(doc); err != nil {
			f.Close()
			return "", fmt.Errorf("writing intent file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing intent file: %w", err)
		}
		b.logger.Info("Intent queued.",
			zap.String("intent", name), zap.String("file", path))
		return path, nil
	}
	return "", fmt.Errorf("no free filename for intent %q after %d attempts", name, attempts)
}

// RunInteractive reads lines from r until EOF or context cancellation is
// observed by the caller closing r. Replies are written to w.
func (b *Bridge) RunInteractive(r io.Reader, w io.Writer) error {
	prompt := b.chatCfg.Prompt
	if prompt == "" {
		prompt = "> "
	}
	scanner := bufio.NewScanner(r)
	fmt.Fprint(w, prompt)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "exit" || strings.TrimSpace(line) == "quit" {
			return nil
		}
		if reply := b.HandleLine(line); reply != "" {
			fmt.Fprintln(w, reply)
		}
		fmt.Fprint(w, prompt)
	}
	return scanner.Err()
}
