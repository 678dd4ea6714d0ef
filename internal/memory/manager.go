// Package memory keeps aggregate live context bounded for the whole
// 150-step workflow through four compression levels: agent output to
// ~50-token summary, wave to ~500-token cache, phase to ~2000-token
// synthesis, and raw outputs to a gzip archive. Downstream readers
// consume the level that matches their horizon; raw text is only read
// back on explicit request.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/praxislabs/thesisd/internal/paths"
	"github.com/praxislabs/thesisd/internal/steps"
)

const instrumentationName = "github.com/praxislabs/thesisd/internal/memory"

// Default target sizes per compression level, in estimated tokens.
const (
	AgentSummaryTokens   = 50
	WaveCacheTokens      = 500
	PhaseSynthesisTokens = 2000
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCompressionLimits overrides the per-level target sizes. Zero
// values keep the defaults.
func WithCompressionLimits(summary, waveCache, synthesis int) ManagerOption {
	return func(m *Manager) {
		if summary > 0 {
			m.summaryTokens = summary
		}
		if waveCache > 0 {
			m.waveCacheTokens = waveCache
		}
		if synthesis > 0 {
			m.synthesisTokens = synthesis
		}
	}
}

// summariesFilename persists Level-1 state for resume.
const summariesFilename = "agent-summaries.json"

// AgentOutput is one agent's full markdown product.
type AgentOutput struct {
	Agent      string
	Step       int
	Phase      steps.Phase
	Content    string
	TokenCount int // estimated from Content when zero
}

// Tokens returns the output's token count, estimating when unset.
func (o AgentOutput) Tokens() int {
	if o.TokenCount > 0 {
		return o.TokenCount
	}
	return EstimateTokens(o.Content)
}

// AgentSummary is the Level-1 compressed form.
type AgentSummary struct {
	Agent         string    `json:"agent"`
	Step          int       `json:"step"`
	Phase         string    `json:"phase"`
	Summary       string    `json:"summary"`
	KeyPoints     []string  `json:"key_points,omitempty"`
	RawPath       string    `json:"raw_path"`
	RawTokens     int       `json:"raw_tokens"`
	SummaryTokens int       `json:"summary_tokens"`
	CreatedAt     time.Time `json:"created_at"`
}

// WaveCache is the Level-2 compressed form of one literature wave.
type WaveCache struct {
	Wave        int       `json:"wave"`
	Agents      []string  `json:"agents"`
	GateResult  string    `json:"gate_result"`
	TopFindings []string  `json:"top_findings"`
	Summary     string    `json:"summary"`
	Tokens      int       `json:"tokens"`
	CreatedAt   time.Time `json:"created_at"`
}

// phaseIndex numbers the synthesis files phase-{0..4}-synthesis.md.
func phaseIndex(phase steps.Phase) (int, bool) {
	switch phase {
	case steps.Phase0:
		return 0, true
	case steps.Phase1Wave1, steps.Phase1Wave2, steps.Phase1Wave3,
		steps.Phase1Wave4, steps.Phase1Wave5:
		return 1, true
	case steps.HITL2, steps.Phase2:
		return 2, true
	case steps.Phase3:
		return 3, true
	case steps.Phase4:
		return 4, true
	}
	return 0, false
}

// Manager performs the compressions and the archive moves, charging and
// releasing the budget as forms change level. Accounting is released
// only after the corresponding on-disk write succeeded.
type Manager struct {
	mu        sync.Mutex
	root      string
	resolver  *paths.Resolver
	budget    *Budget
	logger    *zap.Logger
	summaries []AgentSummary

	summaryTokens   int
	waveCacheTokens int
	synthesisTokens int

	compressions metric.Int64Counter
	archiveBytes metric.Int64Counter
}

// NewManager creates a memory manager rooted at a project.
func NewManager(resolver *paths.Resolver, projectRoot string, budget *Budget,
	logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		root:            projectRoot,
		resolver:        resolver,
		budget:          budget,
		logger:          logger,
		summaryTokens:   AgentSummaryTokens,
		waveCacheTokens: WaveCacheTokens,
		synthesisTokens: PhaseSynthesisTokens,
	}
	for _, opt := range opts {
		opt(m)
	}

	meter := otel.Meter(instrumentationName)
	var err error
	m.compressions, err = meter.Int64Counter("thesisd.memory.compressions_total",
		metric.WithDescription("Compressions performed, by level"))
	if err != nil {
		logger.Warn("compressions counter unavailable", zap.Error(err))
	}
	m.archiveBytes, err = meter.Int64Counter("thesisd.memory.archived_bytes_total",
		metric.WithDescription("Compressed bytes moved into the archive"))
	if err != nil {
		logger.Warn("archive counter unavailable", zap.Error(err))
	}
	return m
}

// Restore reloads Level-1 state from disk after a crash or restart.
func (m *Manager) Restore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(m.resolver.MemoryDir(m.root), summariesFilename))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read agent summaries: %w", err)
	}
	var restored []AgentSummary
	if err := json.Unmarshal(data, &restored); err != nil {
		return fmt.Errorf("decode agent summaries: %w", err)
	}
	m.summaries = restored
	return nil
}

// CompressAgent applies Level 1: the raw output moves to _temp on disk
// and only the summary stays live. The raw token charge is released
// after the write succeeds, then the summary is charged.
func (m *Manager) CompressAgent(ctx context.Context, out AgentOutput) (*AgentSummary, error) {
	rawTokens := out.Tokens()

	tempDir := m.resolver.TempDir(m.root)
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	rawPath := filepath.Join(tempDir, fmt.Sprintf("step-%03d-%s.md", out.Step, out.Agent))
	if err := os.WriteFile(rawPath, []byte(out.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write raw output: %w", err)
	}

	summary := &AgentSummary{
		Agent:     out.Agent,
		Step:      out.Step,
		Phase:     string(out.Phase),
		Summary:   summarize(out.Content, m.summaryTokens),
		KeyPoints: keyPoints(out.Content, 3),
		RawPath:   rawPath,
		RawTokens: rawTokens,
		CreatedAt: time.Now().UTC(),
	}
	summary.SummaryTokens = EstimateTokens(summary.Summary)

	phase := string(out.Phase)
	if err := m.budget.Release(phase, rawTokens); err != nil {
		return nil, err
	}
	if err := m.budget.Add(phase, summary.SummaryTokens); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.summaries = append(m.summaries, *summary)
	err := m.persistSummariesLocked()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if m.compressions != nil {
		m.compressions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", "agent")))
	}
	m.logger.Debug("compressed agent output",
		zap.String("agent", out.Agent),
		zap.Int("step", out.Step),
		zap.Int("raw_tokens", rawTokens),
		zap.Int("summary_tokens", summary.SummaryTokens))
	return summary, nil
}

// Summaries returns Level-1 summaries, optionally filtered to a wave
// (0 means all).
func (m *Manager) Summaries(wave int) []AgentSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AgentSummary
	for _, s := range m.summaries {
		if wave == 0 || steps.Wave(s.Step) == wave {
			out = append(out, s)
		}
	}
	return out
}

// CompressWave applies Level 2: the wave's agent summaries merge into a
// cache record at memory/wave-cache/wave-N.json, and their individual
// charges are replaced by the cache's.
func (m *Manager) CompressWave(ctx context.Context, wave int, gateResult string) (*WaveCache, error) {
	waveSummaries := m.Summaries(wave)
	if len(waveSummaries) == 0 {
		return nil, fmt.Errorf("no agent summaries recorded for wave %d", wave)
	}

	cache := &WaveCache{
		Wave:       wave,
		GateResult: gateResult,
		CreatedAt:  time.Now().UTC(),
	}
	var parts []string
	var released int
	var phase string
	for _, s := range waveSummaries {
		cache.Agents = append(cache.Agents, s.Agent)
		cache.TopFindings = append(cache.TopFindings, s.KeyPoints...)
		parts = append(parts, s.Summary)
		released += s.SummaryTokens
		phase = s.Phase
	}
	if len(cache.TopFindings) > 10 {
		cache.TopFindings = cache.TopFindings[:10]
	}
	cache.Summary = TruncateToTokens(strings.Join(parts, " "), m.waveCacheTokens)
	cache.Tokens = EstimateTokens(cache.Summary)

	cacheDir := filepath.Join(m.resolver.MemoryDir(m.root), "wave-cache")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create wave-cache directory: %w", err)
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode wave cache: %w", err)
	}
	cachePath := filepath.Join(cacheDir, fmt.Sprintf("wave-%d.json", wave))
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write wave cache: %w", err)
	}

	if err := m.budget.Release(phase, released); err != nil {
		return nil, err
	}
	if err := m.budget.Add(phase, cache.Tokens); err != nil {
		return nil, err
	}

	if m.compressions != nil {
		m.compressions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", "wave")))
	}
	m.logger.Info("compressed wave",
		zap.Int("wave", wave),
		zap.Int("agents", len(cache.Agents)),
		zap.Int("tokens", cache.Tokens))
	return cache, nil
}

// WaveCaches loads all Level-2 caches currently live on disk, ordered
// by wave.
func (m *Manager) WaveCaches() ([]WaveCache, error) {
	cacheDir := filepath.Join(m.resolver.MemoryDir(m.root), "wave-cache")
	entries, err := os.ReadDir(cacheDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read wave-cache directory: %w", err)
	}

	var caches []WaveCache
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cacheDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read wave cache %s: %w", entry.Name(), err)
		}
		var cache WaveCache
		if err := json.Unmarshal(data, &cache); err != nil {
			return nil, fmt.Errorf("decode wave cache %s: %w", entry.Name(), err)
		}
		caches = append(caches, cache)
	}
	sort.Slice(caches, func(i, j int) bool { return caches[i].Wave < caches[j].Wave })
	return caches, nil
}

// CompressPhase applies Level 3: live wave caches (or, outside phase 1,
// the phase's agent summaries) merge into a narrative synthesis at
// memory/phase-N-synthesis.md. Consumed wave caches are archived.
func (m *Manager) CompressPhase(ctx context.Context, phase steps.Phase) (string, error) {
	idx, ok := phaseIndex(phase)
	if !ok {
		return "", fmt.Errorf("phase %q has no synthesis slot", phase)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "# Phase %d Synthesis\n\n", idx)

	releases := map[string]int{}
	budgetPhase := string(phase)
	if idx == 1 {
		caches, err := m.WaveCaches()
		if err != nil {
			return "", err
		}
		if len(caches) == 0 {
			return "", fmt.Errorf("no wave caches to synthesize for phase %d", idx)
		}
		for _, cache := range caches {
			fmt.Fprintf(&body, "## Wave %d (%s)\n\n%s\n\n", cache.Wave, cache.GateResult,
				TruncateToTokens(cache.Summary, m.synthesisTokens/len(caches)))
			if len(cache.TopFindings) > 0 {
				body.WriteString("Key findings:\n")
				for _, f := range cache.TopFindings {
					fmt.Fprintf(&body, "- %s\n", f)
				}
				body.WriteString("\n")
			}
			// Caches were charged under their own wave's phase key.
			if wavePhase, ok := steps.WavePhase(cache.Wave); ok {
				releases[string(wavePhase)] += cache.Tokens
			} else {
				releases[budgetPhase] += cache.Tokens
			}
		}
	} else {
		summaries := m.phaseSummaries(phase)
		if len(summaries) == 0 {
			return "", fmt.Errorf("no agent summaries to synthesize for phase %q", phase)
		}
		for _, s := range summaries {
			fmt.Fprintf(&body, "## Step %d — %s\n\n%s\n\n", s.Step, s.Agent, s.Summary)
			releases[budgetPhase] += s.SummaryTokens
		}
	}

	text := TruncateToTokens(body.String(), m.synthesisTokens)
	synthPath := filepath.Join(m.resolver.MemoryDir(m.root),
		fmt.Sprintf("phase-%d-synthesis.md", idx))
	if err := os.MkdirAll(filepath.Dir(synthPath), 0o755); err != nil {
		return "", fmt.Errorf("create memory directory: %w", err)
	}
	if err := os.WriteFile(synthPath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write phase synthesis: %w", err)
	}

	// Wave caches consumed by a synthesis move to the archive.
	if idx == 1 {
		if err := m.archiveWaveCaches(ctx); err != nil {
			return "", err
		}
	}

	for key, tokens := range releases {
		if err := m.budget.Release(key, tokens); err != nil {
			return "", err
		}
	}
	if err := m.budget.Add(budgetPhase, EstimateTokens(text)); err != nil {
		return "", err
	}

	if m.compressions != nil {
		m.compressions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", "phase")))
	}
	m.logger.Info("compressed phase",
		zap.String("phase", string(phase)),
		zap.String("synthesis", synthPath))
	return synthPath, nil
}

// ArchivePhase applies Level 4: every raw output accumulated in _temp
// is gzipped into _archive once the owning phase has closed.
func (m *Manager) ArchivePhase(ctx context.Context) error {
	tempDir := m.resolver.TempDir(m.root)
	entries, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read temp directory: %w", err)
	}

	archiveDir := m.resolver.ArchiveDir(m.root)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		dst, size, err := archiveFile(filepath.Join(tempDir, entry.Name()), archiveDir)
		if err != nil {
			return err
		}
		if m.archiveBytes != nil {
			m.archiveBytes.Add(ctx, size)
		}
		m.logger.Debug("archived raw output", zap.String("archive", dst))
	}
	return nil
}

// Archive gzips an arbitrary live file into the project archive and
// removes the original. Other subsystems with immediately-archivable
// intermediates (the chunked processor) route through here so the
// archive layout stays uniform.
func (m *Manager) Archive(ctx context.Context, path string) (string, error) {
	dst, size, err := archiveFile(path, m.resolver.ArchiveDir(m.root))
	if err != nil {
		return "", err
	}
	if m.archiveBytes != nil {
		m.archiveBytes.Add(ctx, size)
	}
	return dst, nil
}

// ReadArchived decompresses one archived raw output on explicit request.
func (m *Manager) ReadArchived(name string) ([]byte, error) {
	return readArchived(filepath.Join(m.resolver.ArchiveDir(m.root), name))
}

func (m *Manager) phaseSummaries(phase steps.Phase) []AgentSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AgentSummary
	for _, s := range m.summaries {
		if s.Phase == string(phase) {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) archiveWaveCaches(ctx context.Context) error {
	cacheDir := filepath.Join(m.resolver.MemoryDir(m.root), "wave-cache")
	entries, err := os.ReadDir(cacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read wave-cache directory: %w", err)
	}
	archiveDir := m.resolver.ArchiveDir(m.root)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		dst, size, err := archiveFile(filepath.Join(cacheDir, entry.Name()), archiveDir)
		if err != nil {
			return err
		}
		if m.archiveBytes != nil {
			m.archiveBytes.Add(ctx, size)
		}
		m.logger.Debug("archived wave cache", zap.String("archive", dst))
	}
	return nil
}

func (m *Manager) persistSummariesLocked() error {
	memDir := m.resolver.MemoryDir(m.root)
	if err := os.MkdirAll(memDir, 0o755); err != nil {
		return fmt.Errorf("create memory directory: %w", err)
	}
	data, err := json.MarshalIndent(m.summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode agent summaries: %w", err)
	}
	if err := os.WriteFile(filepath.Join(memDir, summariesFilename), data, 0o644); err != nil {
		return fmt.Errorf("write agent summaries: %w", err)
	}
	return nil
}

// summarize derives a compact prose summary, preferring the first
// non-heading paragraph.
func summarize(content string, limit int) string {
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "#") || strings.HasPrefix(para, "```") {
			continue
		}
		// Bullet lists carry less narrative than prose; skip unless
		// nothing else exists.
		if strings.HasPrefix(para, "- ") || strings.HasPrefix(para, "* ") {
			continue
		}
		return TruncateToTokens(strings.Join(strings.Fields(para), " "), limit)
	}
	return TruncateToTokens(strings.Join(strings.Fields(content), " "), limit)
}

// keyPoints extracts up to n top-level bullet lines.
func keyPoints(content string, n int) []string {
	var points []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			points = append(points, strings.TrimSpace(trimmed[2:]))
			if len(points) == n {
				break
			}
		}
	}
	return points
}
