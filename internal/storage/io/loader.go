package io

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/runforge/runforge/internal/model"
)

// BatchYAMLRepository loads batch task definitions from YAML files.
type BatchYAMLRepository struct {
	fs fs.FS
}

// NewBatchYAMLRepository creates a new YAML batch repository.
func NewBatchYAMLRepository(filesystem fs.FS) *BatchYAMLRepository {
	return &BatchYAMLRepository{fs: filesystem}
}

// GetBatch loads a batch definition from a YAML file and returns validated
// task specs in file order.
func (r *BatchYAMLRepository) GetBatch(ctx context.Context, path string) ([]model.TaskSpec, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading batch file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var batch Batch
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := batch.validate(); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	return batch.toModel()
}

// Batch represents the YAML structure of a batch file.
type Batch struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// TaskSpec represents the YAML structure of a single batch task.
type TaskSpec struct {
	Name     string            `yaml:"name"`
	Command  string            `yaml:"command"`
	WorkDir  string            `yaml:"workdir"`
	Env      map[string]string `yaml:"env"`
	Timeout  string            `yaml:"timeout"`
	Category string            `yaml:"category"`
	Priority int               `yaml:"priority"`
}

var validCategories = map[string]bool{
	"":                                 true,
	string(model.TaskCategoryBuild):    true,
	string(model.TaskCategoryTest):     true,
	string(model.TaskCategoryDeploy):   true,
	string(model.TaskCategoryAnalysis): true,
	string(model.TaskCategoryOther):    true,
}

func (b Batch) validate() error {
	if len(b.Tasks) == 0 {
		return fmt.Errorf("at least one task is required")
	}

	seen := map[string]bool{}
	for i, t := range b.Tasks {
		if t.Name == "" {
			return fmt.Errorf("task %d: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("task %d: duplicate name %q", i, t.Name)
		}
		seen[t.Name] = true

		if t.Command == "" {
			return fmt.Errorf("task %q: command is required", t.Name)
		}
		if !validCategories[t.Category] {
			return fmt.Errorf("task %q: unknown category %q", t.Name, t.Category)
		}
	}

	return nil
}

func (b Batch) toModel() ([]model.TaskSpec, error) {
	specs := make([]model.TaskSpec, 0, len(b.Tasks))

	for _, t := range b.Tasks {
		var timeout time.Duration
		if t.Timeout != "" {
			var err error
			timeout, err = time.ParseDuration(t.Timeout)
			if err != nil {
				return nil, fmt.Errorf("task %q: invalid timeout: %w", t.Name, err)
			}
		}

		specs = append(specs, model.TaskSpec{
			Name:    t.Name,
			Command: t.Command,
			Options: model.TaskOptions{
				Execution: model.ExecutionOptions{
					WorkingDir: t.WorkDir,
					Env:        t.Env,
					Timeout:    timeout,
				},
				Category: model.TaskCategory(t.Category),
				Priority: t.Priority,
			},
		})
	}

	return specs, nil
}
