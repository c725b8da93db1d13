package batch

// Surface is an opaque style-property store. The batcher never assumes a
// rendering technology; anything addressable by (property, value) pairs can
// sit behind this interface.
type Surface interface {
	// Name identifies the surface for grouping and diagnostics.
	Name() string

	// SetProperty applies a single property write.
	SetProperty(key, value string) error

	// SetPropertyText applies a composite write covering every entry in
	// props as one surface mutation.
	SetPropertyText(props map[string]string) error
}
