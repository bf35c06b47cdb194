package hotswap

import "fmt"

// ModuleVersion is the immutable identity of a module build. Two versions
// with the same field values are the same build.
type ModuleVersion struct {
	// Identifier is the stable module identifier. It is the lookup key for
	// registrations and must be non-empty.
	Identifier string `json:"identifier" yaml:"identifier" toml:"identifier"`

	// Version is the human-meaningful version string, e.g. "2.1.0".
	Version string `json:"version" yaml:"version" toml:"version"`

	// BuildNumber distinguishes builds of the same version.
	BuildNumber string `json:"buildNumber,omitempty" yaml:"buildNumber" toml:"buildNumber"`

	// Checksum is a content hash of the module artifact, opaque to the core.
	Checksum string `json:"checksum,omitempty" yaml:"checksum" toml:"checksum"`

	// CompatibilityVersion declares which versions this build can be swapped
	// with. Interpretation is up to the module's ValidateCompatibility.
	CompatibilityVersion string `json:"compatibilityVersion,omitempty" yaml:"compatibilityVersion" toml:"compatibilityVersion"`
}

// Validate checks that the version carries a usable identity.
func (v ModuleVersion) Validate() error {
	if v.Identifier == "" {
		return fmt.Errorf("%w: module identifier cannot be empty", ErrInvalidModule)
	}
	return nil
}

// Equal reports whether two versions describe the same build.
func (v ModuleVersion) Equal(other ModuleVersion) bool {
	return v == other
}

// String renders the version as "identifier@version" with the build number
// appended when present.
func (v ModuleVersion) String() string {
	if v.BuildNumber != "" {
		return fmt.Sprintf("%s@%s+%s", v.Identifier, v.Version, v.BuildNumber)
	}
	return fmt.Sprintf("%s@%s", v.Identifier, v.Version)
}
