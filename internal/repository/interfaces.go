package repository

// Slot names a staging role. Each slot maps to exactly one file in the
// data directory.
type Slot string

const (
	SlotFirst  Slot = "first"
	SlotSecond Slot = "second"
	SlotSingle Slot = "single"
)

// Valid reports whether s is a known slot
func (s Slot) Valid() bool {
	switch s {
	case SlotFirst, SlotSecond, SlotSingle:
		return true
	}
	return false
}

// Workspace defines the persisted state layout of the application data
// directory: the cascade asset, one staged copy per slot and the most
// recent output image per strategy.
type Workspace interface {
	// Root returns the data directory path
	Root() string

	// Ensure creates the data directory (and parents) if missing
	Ensure() error

	// StagedPath returns the deterministic destination for a slot
	StagedPath(slot Slot, ext string) (string, error)

	// StagedSiblings lists existing staged files of a slot, any extension
	StagedSiblings(slot Slot) ([]string, error)

	// OutputDir returns (and creates) the output directory for a strategy kind
	OutputDir(kind string) (string, error)

	// AssetPath returns the installed location of a named asset file
	AssetPath(fileName string) string
}
