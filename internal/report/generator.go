// Package report produces honeypot reports: it picks the log to analyse,
// reuses cached results and renders them for humans.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/honeypulse/internal/analysis"
	"github.com/user/honeypulse/internal/model"
	"github.com/user/honeypulse/internal/storage"
	"github.com/user/honeypulse/internal/util"
)

// Generator creates reports from activity logs.
type Generator struct {
	engine *analysis.Engine
	store  *storage.ReportStorage
	logDir string
	now    func() time.Time
}

// NewGenerator creates a report generator. db may be nil, which disables caching.
func NewGenerator(db *storage.DB, cfg *util.Config) *Generator {
	g := &Generator{
		engine: analysis.NewEngine(analysis.Options{
			TopN:              cfg.TopN,
			PayloadDisplayLen: cfg.PayloadDisplayLen,
		}),
		logDir: cfg.LogDir,
		now:    time.Now,
	}
	if db != nil {
		g.store = storage.NewReportStorage(db)
	}
	return g
}

// Resolve returns opts.LogFile, or the latest log in the log directory when
// none is given.
func (g *Generator) Resolve(opts model.ReportOptions) (string, error) {
	if opts.LogFile != "" {
		return opts.LogFile, nil
	}
	return analysis.LatestLogFile(g.logDir)
}

// Generate returns the report for the selected log file, reusing a cached
// result while the file is unchanged.
func (g *Generator) Generate(opts model.ReportOptions) (*model.CachedReport, error) {
	path, err := g.Resolve(opts)
	if err != nil {
		return nil, err
	}
	return g.generate(path, false)
}

// Refresh re-analyses the selected log file regardless of the cache.
func (g *Generator) Refresh(opts model.ReportOptions) (*model.CachedReport, error) {
	path, err := g.Resolve(opts)
	if err != nil {
		return nil, err
	}
	return g.generate(path, true)
}

// Cached returns metadata of every cached analysis keyed by log file path.
// It is empty when caching is disabled.
func (g *Generator) Cached() (map[string]model.CachedReport, error) {
	out := make(map[string]model.CachedReport)
	if g.store == nil {
		return out, nil
	}
	list, err := g.store.List()
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		out[c.LogFile] = c
	}
	return out, nil
}

func (g *Generator) generate(path string, force bool) (*model.CachedReport, error) {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	if g.store != nil && !force {
		cached, err := g.store.Fresh(path, info.Size(), info.ModTime())
		if err != nil {
			util.Warn("Failed to read cached report for %s: %v", path, err)
		} else if cached != nil {
			util.Debug("Using cached report for %s", path)
			return cached, nil
		}
	}

	util.Debug("Analyzing %s", path)
	rep, err := g.engine.AnalyzeFile(path)
	if err != nil {
		return nil, err
	}

	cached := &model.CachedReport{
		LogFile:     path,
		FileSize:    info.Size(),
		FileModTime: info.ModTime(),
		GeneratedAt: g.now(),
		Report:      rep,
	}

	if g.store != nil {
		if err := g.store.Save(cached); err != nil {
			util.Warn("Failed to cache report for %s: %v", path, err)
		}
	}

	return cached, nil
}
