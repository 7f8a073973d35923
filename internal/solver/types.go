package solver

// Cookbook is a resolved cookbook name and version.
type Cookbook struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Cookbooks splits a solution into cookbooks maintained in-house (their name
// starts with an owned prefix) and third-party ones.
type Cookbooks struct {
	Owned      []Cookbook `json:"owned"`
	ThirdParty []Cookbook `json:"third_party"`
}

// Len returns the total number of cookbooks.
func (c Cookbooks) Len() int {
	return len(c.Owned) + len(c.ThirdParty)
}

// Clone returns a deep copy of c.
func (c Cookbooks) Clone() Cookbooks {
	return Cookbooks{
		Owned:      append(make([]Cookbook, 0, len(c.Owned)), c.Owned...),
		ThirdParty: append(make([]Cookbook, 0, len(c.ThirdParty)), c.ThirdParty...),
	}
}
