package amp

// Appliance describes a deployable appliance and the steps that install it.
type Appliance struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Roles    map[string]any `json:"roles,omitempty"`
	Steps    []Step         `json:"steps"`
	AppSteps []Step         `json:"app_steps"`
	Options  map[string]any `json:"options,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AllSteps returns infrastructure steps followed by application steps.
func (a *Appliance) AllSteps() []Step {
	steps := make([]Step, 0, len(a.Steps)+len(a.AppSteps))
	steps = append(steps, a.Steps...)
	return append(steps, a.AppSteps...)
}

// Step binds a role of the appliance to the package that provisions it.
type Step struct {
	Role    string `json:"role"`
	Package string `json:"package"`
}

// Package is an installable unit. Command holds the chef-client invocation,
// e.g. "chef-client -o role[web] -E production".
type Package struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Command  string         `json:"command"`
	OS       string         `json:"os"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
