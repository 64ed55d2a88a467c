package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/common"
	"github.com/ternarybob/clavis/internal/models"
)

// Recorder writes markdown snapshots of pages that ended a login flow in
// challenge_blocked, field_not_found or failed, so portal markup drift can
// be diagnosed without re-running the flow. Recording never affects the
// flow itself; every failure here is logged and swallowed.
type Recorder struct {
	config common.SnapshotsConfig
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewRecorder creates a snapshot recorder. A disabled recorder is still
// safe to call; Record becomes a no-op.
func NewRecorder(config common.SnapshotsConfig, logger arbor.ILogger) *Recorder {
	return &Recorder{
		config: config,
		logger: logger,
	}
}

// Record converts the page to markdown and writes it tagged with the flow
// session and terminal state, then prunes snapshots beyond the configured
// limit.
func (r *Recorder) Record(sessionID string, state models.FlowState, snapshot models.PageSnapshot) {
	if !r.config.Enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.config.Dir, 0755); err != nil {
		r.logger.Warn().Err(err).Str("dir", r.config.Dir).Msg("Failed to create snapshot directory")
		return
	}

	body := r.convert(snapshot)
	content := fmt.Sprintf("# Flow snapshot\n\n- Session: %s\n- State: %s\n- URL: %s\n- Captured: %s\n\n---\n\n%s\n",
		sessionID, state, snapshot.URL, time.Now().UTC().Format(time.RFC3339), body)

	filename := fmt.Sprintf("%s_%s_%s.md",
		time.Now().UTC().Format("20060102T150405"), sessionID, state)
	path := filepath.Join(r.config.Dir, filename)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("Failed to write flow snapshot")
		return
	}

	r.logger.Info().
		Str("path", path).
		Str("state", string(state)).
		Msg("Flow snapshot recorded")

	r.prune()
}

// convert renders the page HTML as markdown, falling back to the raw HTML
// when conversion fails.
func (r *Recorder) convert(snapshot models.PageSnapshot) string {
	converter := md.NewConverter(snapshot.URL, true, nil)
	converted, err := converter.ConvertString(snapshot.HTML)
	if err != nil {
		r.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, storing raw HTML")
		return "```html\n" + snapshot.HTML + "\n```"
	}
	return converted
}

// prune removes the oldest snapshots beyond the configured limit. The
// timestamp filename prefix makes name order chronological.
func (r *Recorder) prune() {
	if r.config.MaxFiles <= 0 {
		return
	}

	entries, err := filepath.Glob(filepath.Join(r.config.Dir, "*.md"))
	if err != nil || len(entries) <= r.config.MaxFiles {
		return
	}

	sort.Strings(entries)
	for _, path := range entries[:len(entries)-r.config.MaxFiles] {
		if err := os.Remove(path); err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("Failed to prune snapshot")
		}
	}
}
