// This is a compatibility shim for POSIX-defined errno codes across platforms.
// The syscall package doesn't define all the values we need on all systems,
// particularly things like EUCLEAN, so we carry our own numbering.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK Errno = iota
	EPERM
	EIO
	EBADF
	EBUSY
	EEXIST
	ENODEV
	EINVAL
	ENOSPC
	EROFS
	ERANGE
	ENOSYS
	ENOTSUP
	EUCLEAN
	EMEDIUMTYPE
)

var errorMessagesByCode = map[Errno]string{
	EOK:         "Success",
	EPERM:       "Operation not permitted",
	EIO:         "Input/output error",
	EBADF:       "Bad file descriptor",
	EBUSY:       "Device or resource busy",
	EEXIST:      "File exists",
	ENODEV:      "No such device",
	EINVAL:      "Invalid argument",
	ENOSPC:      "No space left on device",
	EROFS:       "Read-only file system",
	ERANGE:      "Numerical result out of range",
	ENOSYS:      "Function not implemented",
	ENOTSUP:     "Operation not supported",
	EUCLEAN:     "Structure needs cleaning",
	EMEDIUMTYPE: "Wrong medium type",
}

var ErrNotPermitted = New(EPERM)
var ErrIOFailed = New(EIO)
var ErrInvalidFileDescriptor = New(EBADF)
var ErrBusy = New(EBUSY)
var ErrExists = New(EEXIST)
var ErrNoDevice = New(ENODEV)
var ErrInvalidArgument = New(EINVAL)
var ErrNoSpaceOnDevice = New(ENOSPC)
var ErrReadOnlyFileSystem = New(EROFS)
var ErrResultOutOfRange = New(ERANGE)
var ErrNotImplemented = New(ENOSYS)
var ErrNotSupported = New(ENOTSUP)
var ErrFileSystemCorrupted = New(EUCLEAN)
var ErrWrongMediumType = New(EMEDIUMTYPE)

// StrError returns the default message for an errno code.
func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
