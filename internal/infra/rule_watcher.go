package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// RuleFileWatcher keeps a rule repository in sync with a rule file that
// a guardian edits or a sync job drops in place.
type RuleFileWatcher struct {
	path     string
	repo     domain.RuleRepository
	validate func(domain.TrackedAppRule) error
	logger   *zap.Logger
}

// NewRuleFileWatcher creates a watcher for the rule file at path.
func NewRuleFileWatcher(path string, repo domain.RuleRepository, validate func(domain.TrackedAppRule) error, logger *zap.Logger) *RuleFileWatcher {
	return &RuleFileWatcher{
		path:     filepath.Clean(path),
		repo:     repo,
		validate: validate,
		logger:   logger,
	}
}

// Run imports the file once if it exists, then re-imports it on every
// write until ctx is cancelled. A file that fails to parse or validate
// is logged and leaves the repository untouched.
func (w *RuleFileWatcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("ensure dir %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// The directory is watched so that replace-by-rename is seen.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if _, err := os.Stat(w.path); err == nil {
		w.reload(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug("Rule file changed", zap.String("op", event.Op.String()))
				w.reload(ctx)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Rule file watch error", zap.Error(err))
		}
	}
}

func (w *RuleFileWatcher) reload(ctx context.Context) {
	n, err := ImportRules(ctx, w.repo, w.path, w.validate)
	if err != nil {
		var pe *domain.ParseError
		if errors.As(err, &pe) {
			w.logger.Warn("Rule file rejected", zap.String("path", w.path), zap.String("field", pe.Field), zap.String("value", pe.Value))
			return
		}
		w.logger.Warn("Rule file import failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("Rules reloaded", zap.String("path", w.path), zap.Int("count", n))
}
