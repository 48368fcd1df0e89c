package blockdev

import (
	"fmt"

	"github.com/dargueta/squashblk/errors"
)

// BlockType describes what a device is used for. The first RoleCount types are
// also roles: a registry can designate one device for each of them.
type BlockType uint

const (
	// Kernel holds the kernel image.
	Kernel BlockType = iota
	// Filesys holds the file system.
	Filesys
	// Scratch is temporary storage with no guarantees across restarts.
	Scratch
	// Swap backs virtual memory.
	Swap
	// Raw is a device not yet assigned a role.
	Raw
	// Foreign is a device owned by someone else. It can be read but never
	// written.
	Foreign

	numBlockTypes
)

// RoleCount is the number of block types that can be assigned as roles.
const RoleCount = int(Raw)

var blockTypeNames = [numBlockTypes]string{
	"kernel",
	"filesys",
	"scratch",
	"swap",
	"raw",
	"foreign",
}

// Name returns the human-readable name of the block type, or an error if the
// value isn't a valid type.
func (t BlockType) Name() (string, error) {
	if t >= numBlockTypes {
		return "", errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("invalid block type %d: not in range [0, %d)", t, numBlockTypes),
		)
	}
	return blockTypeNames[t], nil
}

func (t BlockType) String() string {
	name, err := t.Name()
	if err != nil {
		return fmt.Sprintf("BlockType(%d)", uint(t))
	}
	return name
}

// IsRole reports whether the type can be assigned as a role in a registry.
func (t BlockType) IsRole() bool {
	return int(t) < RoleCount
}

// ParseBlockType is the inverse of [BlockType.Name].
func ParseBlockType(name string) (BlockType, error) {
	for i, typeName := range blockTypeNames {
		if typeName == name {
			return BlockType(i), nil
		}
	}
	return 0, errors.NewWithMessage(
		errors.EINVAL, fmt.Sprintf("unrecognized block type %q", name))
}
