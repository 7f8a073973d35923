package inventory

import (
	"context"

	"github.com/eugenenazirov/knife-inventory/internal/amp"
	"github.com/eugenenazirov/knife-inventory/internal/solver"
)

// Catalogue describes the appliance catalogue queries the service needs.
type Catalogue interface {
	GetAppliance(ctx context.Context, name string) (*amp.Appliance, error)
	GetPackage(ctx context.Context, name string) (*amp.Package, error)
}

// Solver resolves a role in an environment to classified cookbooks.
type Solver interface {
	Solve(ctx context.Context, role, env string) (solver.Cookbooks, error)
}
