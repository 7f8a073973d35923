package inventory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eugenenazirov/knife-inventory/internal/solver"
	"github.com/eugenenazirov/knife-inventory/internal/storage"
)

const defaultConcurrency = 4

// Service resolves appliances and records their inventories in storage.
type Service struct {
	catalogue   Catalogue
	solver      Solver
	store       storage.Storage
	logger      *zap.Logger
	concurrency int
	clock       func() time.Time
}

// Option configures Service behaviour.
type Option func(*Service)

// WithConcurrency bounds the number of knife processes run per appliance.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// New constructs a Service with the provided dependencies.
func New(catalogue Catalogue, slv Solver, store storage.Storage, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		catalogue:   catalogue,
		solver:      slv,
		store:       store,
		logger:      logger,
		concurrency: defaultConcurrency,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve fetches the appliance, solves every step and app step, stores the
// merged inventory under name and returns it.
func (s *Service) Resolve(ctx context.Context, name string) (storage.Inventory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return storage.Inventory{}, ErrInvalidAppliance
	}

	s.logger.Info("resolving appliance", zap.String("appliance", name))
	appliance, err := s.catalogue.GetAppliance(ctx, name)
	if err != nil {
		return storage.Inventory{}, fmt.Errorf("get appliance %s: %w", name, err)
	}

	steps := appliance.AllSteps()
	results := make([]solver.Cookbooks, len(steps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, step := range steps {
		g.Go(func() error {
			pkg, err := s.catalogue.GetPackage(gctx, step.Package)
			if err != nil {
				return fmt.Errorf("step %s: get package %s: %w", step.Role, step.Package, err)
			}
			role, env, err := ParseRoleAndEnv(pkg.Command)
			if err != nil {
				return fmt.Errorf("step %s: package %s: %w", step.Role, step.Package, err)
			}
			cookbooks, err := s.solver.Solve(gctx, role, env)
			if err != nil {
				return fmt.Errorf("step %s: %w", step.Role, err)
			}
			s.logger.Debug("step solved",
				zap.String("appliance", name),
				zap.String("package", step.Package),
				zap.String("role", role),
				zap.String("environment", env),
				zap.Int("cookbooks", cookbooks.Len()),
			)
			results[i] = cookbooks
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return storage.Inventory{}, fmt.Errorf("resolve appliance %s: %w", name, err)
	}

	inv := storage.Inventory{
		Appliance:  name,
		Version:    appliance.Version,
		Cookbooks:  Merge(results...),
		ResolvedAt: s.clock(),
	}
	if err := s.store.Put(inv); err != nil {
		return storage.Inventory{}, fmt.Errorf("store inventory %s: %w", name, err)
	}

	s.logger.Info("appliance resolved",
		zap.String("appliance", name),
		zap.Int("steps", len(steps)),
		zap.Int("owned", len(inv.Cookbooks.Owned)),
		zap.Int("third_party", len(inv.Cookbooks.ThirdParty)),
	)
	return inv, nil
}

// ResolveAll resolves each appliance in turn. Failures are logged and joined
// into the returned error; successful appliances are stored regardless.
func (s *Service) ResolveAll(ctx context.Context, names []string) error {
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.Resolve(ctx, name); err != nil {
			s.logger.Error("appliance resolution failed", zap.String("appliance", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Merge combines solutions, dropping duplicate name/version pairs and sorting
// each group by name then version.
func Merge(solutions ...solver.Cookbooks) solver.Cookbooks {
	var owned, thirdParty []solver.Cookbook
	for _, sol := range solutions {
		owned = append(owned, sol.Owned...)
		thirdParty = append(thirdParty, sol.ThirdParty...)
	}
	return solver.Cookbooks{
		Owned:      sortUnique(owned),
		ThirdParty: sortUnique(thirdParty),
	}
}

func sortUnique(cookbooks []solver.Cookbook) []solver.Cookbook {
	out := slices.Clone(cookbooks)
	if out == nil {
		out = []solver.Cookbook{}
	}
	slices.SortFunc(out, func(a, b solver.Cookbook) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Version, b.Version))
	})
	return slices.Compact(out)
}
