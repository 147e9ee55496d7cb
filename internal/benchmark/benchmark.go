// Package benchmark implements task templates, named benchmarks and the
// evals materialised from them.
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/taskara/internal/errs"
	"github.com/agentsea/taskara/internal/logging"
	"github.com/agentsea/taskara/internal/store"
	"github.com/agentsea/taskara/internal/task"
	"github.com/agentsea/taskara/internal/types"
)

// BenchmarkLabel is the label key stamped on templates and materialised
// tasks, valued with the benchmark's name.
const BenchmarkLabel = "benchmark"

func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Service manages benchmarks and evals. Task materialisation goes through
// the task engine so evals get real tasks with feeds and episodes.
type Service struct {
	store  *store.Store
	tasks  *task.Service
	logger logging.Logger
}

// NewService builds the benchmark engine.
func NewService(st *store.Store, tasks *task.Service) *Service {
	return &Service{
		store:  st,
		tasks:  tasks,
		logger: logging.NewComponentLogger("Benchmarks"),
	}
}

// TemplateToTask materialises a fresh task from a template.
func TemplateToTask(tpl types.V1TaskTemplate, assignedTo, assignedType, ownerID string) types.V1Task {
	return types.V1Task{
		Description:  tpl.Description,
		MaxSteps:     tpl.MaxSteps,
		Device:       tpl.Device,
		DeviceType:   tpl.DeviceType,
		ExpectSchema: tpl.ExpectSchema,
		Parameters:   tpl.Parameters,
		AssignedTo:   assignedTo,
		AssignedType: assignedType,
		OwnerID:      ownerID,
		Tags:         append([]string(nil), tpl.Tags...),
		Labels:       copyLabels(tpl.Labels),
	}
}

// TemplateFromTask extracts the parametric shape of an existing task.
func TemplateFromTask(t types.V1Task) types.V1TaskTemplate {
	return types.V1TaskTemplate{
		Description:  t.Description,
		MaxSteps:     t.MaxSteps,
		Device:       t.Device,
		DeviceType:   t.DeviceType,
		ExpectSchema: t.ExpectSchema,
		Parameters:   t.Parameters,
		OwnerID:      t.OwnerID,
		Tags:         append([]string(nil), t.Tags...),
		Labels:       copyLabels(t.Labels),
	}
}

func copyLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Create persists a benchmark with its templates. Every template gets the
// benchmark label. A duplicate name fails with Conflict.
func (s *Service) Create(ctx context.Context, ownerID string, v1 types.V1Benchmark) (*types.V1Benchmark, error) {
	if v1.Name == "" {
		return nil, errs.Validation("benchmark name is required")
	}
	if v1.ID == "" {
		v1.ID = uuid.NewString()
	}
	if v1.OwnerID == "" {
		v1.OwnerID = ownerID
	}
	if v1.Created == 0 {
		v1.Created = now()
	}

	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		rec := &store.BenchmarkRecord{
			ID:          v1.ID,
			Name:        v1.Name,
			OwnerID:     v1.OwnerID,
			Description: v1.Description,
			Public:      v1.Public,
			Tags:        mustJSON(v1.Tags),
			Labels:      mustJSON(v1.Labels),
			Created:     v1.Created,
		}
		if err := tx.SaveBenchmark(ctx, rec); err != nil {
			if errs.IsConflict(err) {
				return errs.Conflict("benchmark %q already exists", v1.Name)
			}
			return err
		}
		for i := range v1.Tasks {
			tpl := &v1.Tasks[i]
			if tpl.ID == "" {
				tpl.ID = uuid.NewString()
			}
			if tpl.OwnerID == "" {
				tpl.OwnerID = v1.OwnerID
			}
			if tpl.Created == 0 {
				tpl.Created = now()
			}
			if tpl.Labels == nil {
				tpl.Labels = map[string]string{}
			}
			tpl.Labels[BenchmarkLabel] = v1.Name
			if err := tx.SaveTemplate(ctx, templateToRecord(*tpl)); err != nil {
				return err
			}
			if err := tx.AttachTemplate(ctx, v1.ID, tpl.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("created benchmark %s (%q) with %d templates", v1.ID, v1.Name, len(v1.Tasks))
	return &v1, nil
}

// Get loads one benchmark with its templates.
func (s *Service) Get(ctx context.Context, owners []string, id string) (*types.V1Benchmark, error) {
	rec, err := s.store.GetBenchmark(ctx, id, owners)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, rec)
}

// Find lists the benchmarks visible to the caller, public ones included.
func (s *Service) Find(ctx context.Context, owners []string, name string) ([]types.V1Benchmark, error) {
	recs, err := s.store.FindBenchmarks(ctx, owners, name)
	if err != nil {
		return nil, err
	}
	out := make([]types.V1Benchmark, 0, len(recs))
	for _, rec := range recs {
		v1, err := s.assemble(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *v1)
	}
	return out, nil
}

// Delete removes a benchmark. Only its owner may delete it; templates
// survive since they may belong to other benchmarks.
func (s *Service) Delete(ctx context.Context, owners []string, id string) error {
	rec, err := s.store.GetBenchmark(ctx, id, owners)
	if err != nil {
		return err
	}
	if !contains(owners, rec.OwnerID) {
		return errs.NotFound("benchmark %s not found", id)
	}
	return s.store.DeleteBenchmark(ctx, id)
}

// Eval materialises a fresh task per template and records the eval.
func (s *Service) Eval(ctx context.Context, owners []string, benchmarkID string, req types.V1BenchmarkEval, ownerID string) (*types.V1Eval, error) {
	bench, err := s.Get(ctx, owners, benchmarkID)
	if err != nil {
		return nil, err
	}
	eval := &types.V1Eval{
		ID:           uuid.NewString(),
		Benchmark:    bench,
		AssignedTo:   req.AssignedTo,
		AssignedType: req.AssignedType,
		OwnerID:      ownerID,
		Tasks:        []types.V1Task{},
	}
	// One transaction: a mid-materialisation failure leaves no partial eval.
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.SaveEval(ctx, &store.EvalRecord{
			ID:           eval.ID,
			BenchmarkID:  bench.ID,
			OwnerID:      ownerID,
			AssignedTo:   req.AssignedTo,
			AssignedType: req.AssignedType,
			Created:      now(),
		}); err != nil {
			return err
		}
		taskEngine := s.tasks.InTx(tx)
		for _, tpl := range bench.Tasks {
			v1 := TemplateToTask(tpl, req.AssignedTo, req.AssignedType, ownerID)
			if v1.Labels == nil {
				v1.Labels = map[string]string{}
			}
			v1.Labels[BenchmarkLabel] = bench.Name
			created, err := taskEngine.Create(ctx, ownerID, v1)
			if err != nil {
				return err
			}
			if err := tx.AttachEvalTask(ctx, eval.ID, created.ID); err != nil {
				return err
			}
			eval.Tasks = append(eval.Tasks, *created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return eval, nil
}

// CreateEval persists an eval whose benchmark is supplied inline,
// creating the benchmark first when it is new.
func (s *Service) CreateEval(ctx context.Context, owners []string, ownerID string, v1 types.V1Eval) (*types.V1Eval, error) {
	if v1.Benchmark == nil {
		return nil, errs.Validation("an eval needs a benchmark")
	}
	bench := v1.Benchmark
	if bench.ID == "" {
		created, err := s.Create(ctx, ownerID, *bench)
		if err != nil {
			return nil, err
		}
		bench = created
	}
	return s.Eval(ctx, owners, bench.ID, types.V1BenchmarkEval{
		AssignedTo:   v1.AssignedTo,
		AssignedType: v1.AssignedType,
	}, ownerID)
}

// GetEval loads one eval with its benchmark and materialised tasks.
func (s *Service) GetEval(ctx context.Context, owners []string, id string) (*types.V1Eval, error) {
	rec, err := s.store.GetEval(ctx, id, owners)
	if err != nil {
		return nil, err
	}
	return s.assembleEval(ctx, owners, rec)
}

// FindEvals lists the caller's evals.
func (s *Service) FindEvals(ctx context.Context, owners []string) ([]types.V1Eval, error) {
	recs, err := s.store.FindEvals(ctx, owners)
	if err != nil {
		return nil, err
	}
	out := make([]types.V1Eval, 0, len(recs))
	for _, rec := range recs {
		v1, err := s.assembleEval(ctx, owners, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *v1)
	}
	return out, nil
}

// DeleteEval removes an eval. The materialised tasks stay.
func (s *Service) DeleteEval(ctx context.Context, owners []string, id string) error {
	if _, err := s.store.GetEval(ctx, id, owners); err != nil {
		return err
	}
	return s.store.DeleteEval(ctx, id)
}

func (s *Service) assemble(ctx context.Context, rec *store.BenchmarkRecord) (*types.V1Benchmark, error) {
	v1 := &types.V1Benchmark{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		OwnerID:     rec.OwnerID,
		Public:      rec.Public,
		Created:     rec.Created,
		Tasks:       []types.V1TaskTemplate{},
	}
	if len(rec.Tags) > 0 {
		if err := json.Unmarshal(rec.Tags, &v1.Tags); err != nil {
			return nil, fmt.Errorf("decode benchmark tags: %w", err)
		}
	}
	if len(rec.Labels) > 0 {
		if err := json.Unmarshal(rec.Labels, &v1.Labels); err != nil {
			return nil, fmt.Errorf("decode benchmark labels: %w", err)
		}
	}
	tpls, err := s.store.TemplatesForBenchmark(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	for _, tpl := range tpls {
		v1tpl, err := templateFromRecord(tpl)
		if err != nil {
			return nil, err
		}
		v1.Tasks = append(v1.Tasks, *v1tpl)
	}
	return v1, nil
}

func (s *Service) assembleEval(ctx context.Context, owners []string, rec *store.EvalRecord) (*types.V1Eval, error) {
	v1 := &types.V1Eval{
		ID:           rec.ID,
		AssignedTo:   rec.AssignedTo,
		AssignedType: rec.AssignedType,
		OwnerID:      rec.OwnerID,
		Tasks:        []types.V1Task{},
	}
	if rec.BenchmarkID != "" {
		bench, err := s.store.GetBenchmark(ctx, rec.BenchmarkID, owners)
		if err == nil {
			if v1.Benchmark, err = s.assemble(ctx, bench); err != nil {
				return nil, err
			}
		} else if !errs.IsNotFound(err) {
			return nil, err
		}
	}
	taskIDs, err := s.store.TaskIDsForEval(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	tasks, err := s.tasks.FindManyLite(ctx, owners, taskIDs)
	if err != nil {
		return nil, err
	}
	v1.Tasks = tasks
	return v1, nil
}

func templateToRecord(tpl types.V1TaskTemplate) *store.TemplateRecord {
	return &store.TemplateRecord{
		ID:           tpl.ID,
		OwnerID:      tpl.OwnerID,
		Description:  tpl.Description,
		MaxSteps:     tpl.MaxSteps,
		Device:       mustJSON(tpl.Device),
		DeviceType:   mustJSON(tpl.DeviceType),
		ExpectSchema: mustJSON(tpl.ExpectSchema),
		Parameters:   mustJSON(tpl.Parameters),
		Tags:         mustJSON(tpl.Tags),
		Labels:       mustJSON(tpl.Labels),
		Created:      tpl.Created,
	}
}

func templateFromRecord(rec *store.TemplateRecord) (*types.V1TaskTemplate, error) {
	tpl := &types.V1TaskTemplate{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Description: rec.Description,
		MaxSteps:    rec.MaxSteps,
		Created:     rec.Created,
	}
	for _, field := range []struct {
		data []byte
		out  any
		name string
	}{
		{rec.Device, &tpl.Device, "device"},
		{rec.DeviceType, &tpl.DeviceType, "device type"},
		{rec.ExpectSchema, &tpl.ExpectSchema, "expect schema"},
		{rec.Parameters, &tpl.Parameters, "parameters"},
		{rec.Tags, &tpl.Tags, "tags"},
		{rec.Labels, &tpl.Labels, "labels"},
	} {
		if len(field.data) == 0 {
			continue
		}
		if err := json.Unmarshal(field.data, field.out); err != nil {
			return nil, fmt.Errorf("decode template %s: %w", field.name, err)
		}
	}
	return tpl, nil
}

func mustJSON(v any) []byte {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
