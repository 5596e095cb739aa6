package codegen

// BaseBackend provides common functionality shared by backend
// implementations: feature flags and option access. With a single backend
// in this module it is a thin embed, kept for parity with the teacher's
// multi-backend convention (every ISA backend there embeds BaseBackend).
type BaseBackend struct {
	options  *BackendOptions
	features map[string]bool
}

// NewBaseBackend creates a new base backend with LLVM's feature set.
func NewBaseBackend(options *BackendOptions) BaseBackend {
	return BaseBackend{
		options: options,
		features: map[string]bool{
			Feature32BitPointers:    true,
			FeatureFloatingPoint:    true,
			FeatureIndirectCalls:    true,
			FeatureBitManipulation:  true,
			FeatureHardwareMultiply: true,
			FeatureHardwareDivide:   true,
			FeatureAtomics:          true,
		},
	}
}

// GetOptions returns the backend options.
func (b *BaseBackend) GetOptions() *BackendOptions {
	return b.options
}

// SetFeature sets a feature support flag.
func (b *BaseBackend) SetFeature(feature string, supported bool) {
	b.features[feature] = supported
}

// CheckFeature checks if a feature is supported.
func (b *BaseBackend) CheckFeature(feature string) bool {
	return b.features[feature]
}
