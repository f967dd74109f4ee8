package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const ruleFileVersion = 1

// RuleFile is the document used to move rules between devices.
// Files ending in .yaml or .yml are YAML; anything else is JSON.
type RuleFile struct {
	Version int                     `json:"version" yaml:"version"`
	Rules   []domain.TrackedAppRule `json:"rules" yaml:"rules"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ExportRules writes every rule in repo to path.
func ExportRules(ctx context.Context, repo domain.RuleRepository, path string) (int, error) {
	rules, err := repo.ListRules(ctx)
	if err != nil {
		return 0, err
	}
	if rules == nil {
		rules = []domain.TrackedAppRule{}
	}

	file := RuleFile{Version: ruleFileVersion, Rules: rules}
	var data []byte
	if isYAML(path) {
		data, err = yaml.Marshal(&file)
	} else {
		data, err = json.MarshalIndent(file, "", "  ")
	}
	if err != nil {
		return 0, err
	}
	if err := atomicWrite(path, data); err != nil {
		return 0, fmt.Errorf("write rule file: %w", err)
	}
	return len(rules), nil
}

// ImportRules saves every rule in the file at path into repo, replacing
// rules with the same package name. When validate is non-nil the whole
// file is checked before anything is saved.
func ImportRules(ctx context.Context, repo domain.RuleRepository, path string, validate func(domain.TrackedAppRule) error) (int, error) {
	file, err := ReadRuleFile(path)
	if err != nil {
		return 0, err
	}

	if validate != nil {
		for i, rule := range file.Rules {
			if err := validate(rule); err != nil {
				return 0, fmt.Errorf("rule %d (%s): %w", i, rule.PackageName, err)
			}
		}
	}

	for i, rule := range file.Rules {
		if err := repo.SaveRule(ctx, rule); err != nil {
			return i, fmt.Errorf("import rule %d: %w", i, err)
		}
	}
	return len(file.Rules), nil
}

// ReadRuleFile parses a rule file.
func ReadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}

	var file RuleFile
	if isYAML(path) {
		err = yaml.Unmarshal(data, &file)
	} else {
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("parse rule file: %w", err)
	}
	if file.Version > ruleFileVersion {
		return nil, fmt.Errorf("rule file version %d is newer than supported %d", file.Version, ruleFileVersion)
	}
	return &file, nil
}

// atomicWrite writes data to path atomically (write + rename).
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	// Temp file unique per process to avoid races
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
