package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/go-kit/log/level"
	"github.com/sre-norns/repose/pkg/grace"
	"github.com/sre-norns/repose/pkg/repose"
	"gopkg.in/yaml.v3"
)

type (
	ResourceRef struct {
		Kind  string            `help:"Kind of the resource" arg:"" name:"kind"`
		Param map[string]string `help:"Values of endpoint placeholders" short:"p" name:"param"`
	}

	KindsCmd struct{}

	GetCmd struct {
		ResourceRef
	}

	ListCmd struct {
		ResourceRef
		Manager string `help:"Name of the manager to list resources with" short:"m" default:"objects"`
	}

	CountCmd struct {
		ResourceRef
		Manager string `help:"Name of the manager to count resources with" short:"m" default:"objects"`
	}

	SetCmd struct {
		ResourceRef
		Values []string `help:"New field values" arg:"" name:"field=value"`
		DryRun bool     `help:"Show changes without saving them" name:"dry-run"`
	}

	CreateCmd struct {
		ResourceRef
		Filename string `help:"YAML or JSON file with field values of the new resource, '-' to read from STDIN" arg:"" name:"file"`
	}
)

func (ref *ResourceRef) params() repose.Params {
	result := make(repose.Params, len(ref.Param))
	for key, value := range ref.Param {
		result[key] = value
	}

	return result
}

func (ref *ResourceRef) kind(cfg *commandContext) (*repose.Kind, error) {
	a, err := cfg.connect()
	if err != nil {
		return nil, err
	}

	return a.Kind(ref.Kind)
}

func manager(kind *repose.Kind, name string) (*repose.Manager, error) {
	m := kind.Manager(name)
	if m == nil {
		return nil, grace.RaiseError(
			fmt.Sprintf("a manager of %s", kind.Name()),
			fmt.Sprintf("%q", name),
			fmt.Sprintf("use one of: %s", strings.Join(kind.ManagerNames(), ", ")),
		)
	}

	return m, nil
}

func (c *KindsCmd) Run(cfg *commandContext) error {
	a, err := cfg.connect()
	if err != nil {
		return err
	}

	kinds := a.Kinds()
	slices.SortFunc(kinds, func(left, right *repose.Kind) int {
		return strings.Compare(left.Name(), right.Name())
	})

	result := make([]map[string]any, 0, len(kinds))
	for _, k := range kinds {
		fields := make([]string, 0, len(k.Fields()))
		for _, f := range k.Fields() {
			fields = append(fields, f.Name)
		}

		result = append(result, map[string]any{
			"name":         k.Name(),
			"endpoint":     k.Endpoint(),
			"endpointList": k.EndpointList(),
			"fields":       strings.Join(fields, ","),
			"managers":     strings.Join(k.ManagerNames(), ","),
		})
	}

	return cfg.OutputFormatter(result)
}

func (c *GetCmd) Run(cfg *commandContext) error {
	ctx, cancel := context.WithTimeout(cfg.Context, cfg.Timeout)
	defer cancel()

	kind, err := c.kind(cfg)
	if err != nil {
		return err
	}

	resource, err := kind.Objects().Get(ctx, c.params())
	if err != nil {
		return err
	}

	encoded, err := resource.Encode(ctx)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(encoded)
}

func (c *ListCmd) Run(cfg *commandContext) error {
	ctx, cancel := context.WithTimeout(cfg.Context, cfg.Timeout)
	defer cancel()

	kind, err := c.kind(cfg)
	if err != nil {
		return err
	}

	m, err := manager(kind, c.Manager)
	if err != nil {
		return err
	}

	result := []map[string]any{}
	for resource, err := range m.Where(c.params()).Iter(ctx) {
		if err != nil {
			return err
		}

		encoded, err := resource.Encode(ctx)
		if err != nil {
			return err
		}
		result = append(result, encoded)
	}

	return cfg.OutputFormatter(result)
}

func (c *CountCmd) Run(cfg *commandContext) error {
	ctx, cancel := context.WithTimeout(cfg.Context, cfg.Timeout)
	defer cancel()

	kind, err := c.kind(cfg)
	if err != nil {
		return err
	}

	m, err := manager(kind, c.Manager)
	if err != nil {
		return err
	}

	count, err := m.Where(c.params()).Count(ctx)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(map[string]any{
		"kind":    kind.Name(),
		"manager": c.Manager,
		"count":   count,
	})
}

func (c *SetCmd) Run(cfg *commandContext) error {
	ctx, cancel := context.WithTimeout(cfg.Context, cfg.Timeout)
	defer cancel()

	values, err := parseAssignments(c.Values)
	if err != nil {
		return err
	}

	kind, err := c.kind(cfg)
	if err != nil {
		return err
	}

	resource, err := kind.Objects().Get(ctx, c.params())
	if err != nil {
		return err
	}

	for _, name := range slices.Sorted(maps.Keys(values)) {
		if err := resource.Set(name, values[name]); err != nil {
			return err
		}
	}

	changes, err := resource.Changes(ctx)
	if err != nil {
		return err
	}
	level.Debug(cfg.Logger).Log("msg", "saving changes", "resource", resource, "changes", len(changes))

	if c.DryRun {
		return cfg.OutputFormatter(changes)
	}

	if err := resource.Save(ctx); err != nil {
		return err
	}

	encoded, err := resource.Encode(ctx)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(encoded)
}

func (c *CreateCmd) Run(cfg *commandContext) error {
	ctx, cancel := context.WithTimeout(cfg.Context, cfg.Timeout)
	defer cancel()

	content, _, err := readContent(c.Filename)
	if err != nil {
		return err
	}

	// YAML is a superset of JSON
	var values map[string]any
	if err := yaml.Unmarshal(content, &values); err != nil {
		return fmt.Errorf("failed to parse %q: %w", c.Filename, err)
	}

	kind, err := c.kind(cfg)
	if err != nil {
		return err
	}

	resource, err := kind.New(values)
	if err != nil {
		return err
	}

	if err := kind.Objects().Where(c.params()).Create(ctx, resource); err != nil {
		return err
	}

	encoded, err := resource.Encode(ctx)
	if err != nil {
		return err
	}

	return cfg.OutputFormatter(encoded)
}
