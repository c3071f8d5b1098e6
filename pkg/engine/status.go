package engine

import "fmt"

// Status is the numeric file status reported by the engine after a call
type Status int

const (
	StatusOk                   Status = 0
	StatusSysError             Status = 1
	StatusParamError           Status = 2
	StatusTooManyFiles         Status = 3
	StatusModeClash            Status = 4
	StatusRecordLocked         Status = 5
	StatusBroken               Status = 6
	StatusDuplicate            Status = 7
	StatusNotFound             Status = 8
	StatusUndefinedRecord      Status = 9
	StatusDiskFull             Status = 10
	StatusFileLocked           Status = 11
	StatusRecordChanged        Status = 12
	StatusMismatch             Status = 13
	StatusNoMemory             Status = 14
	StatusMissingFile          Status = 15
	StatusPermission           Status = 16
	StatusNoSupportError       Status = 17
	StatusNoLocks              Status = 18
	StatusInterface            Status = 19
	StatusLicenseError         Status = 20
	StatusUnknownError         Status = 21
	StatusTransaction          Status = 22
	StatusCodeSet              Status = 23
	StatusAcuFhAlreadyOpened   Status = 24
	StatusAcuFhAlreadyClosed   Status = 25
	StatusNotMe                Status = 99
	StatusNoSupportWarning     Status = 100
	StatusDuplicateOkWarning   Status = 101
	StatusExtFh21              Status = 102
	StatusExtFh37              Status = 103
	StatusExtFh49              Status = 104
	StatusInvalidFileOperation Status = 105
	StatusClosedWithLock       Status = 106
	StatusAcuFhCloseReel       Status = 107
	StatusUnmanagedError       Status = 999
)

var statusNames = map[Status]string{
	StatusOk:                   "ok",
	StatusSysError:             "system error",
	StatusParamError:           "parameter error",
	StatusTooManyFiles:         "too many files",
	StatusModeClash:            "mode clash",
	StatusRecordLocked:         "record locked",
	StatusBroken:               "broken file",
	StatusDuplicate:            "duplicate key",
	StatusNotFound:             "not found",
	StatusUndefinedRecord:      "undefined record",
	StatusDiskFull:             "disk full",
	StatusFileLocked:           "file locked",
	StatusRecordChanged:        "record changed",
	StatusMismatch:             "mismatch",
	StatusNoMemory:             "no memory",
	StatusMissingFile:          "missing file",
	StatusPermission:           "permission denied",
	StatusNoSupportError:       "not supported",
	StatusNoLocks:              "no locks",
	StatusInterface:            "interface error",
	StatusLicenseError:         "license error",
	StatusUnknownError:         "unknown error",
	StatusTransaction:          "transaction error",
	StatusCodeSet:              "code set error",
	StatusAcuFhAlreadyOpened:   "already opened",
	StatusAcuFhAlreadyClosed:   "already closed",
	StatusNotMe:                "not me",
	StatusNoSupportWarning:     "not supported (warning)",
	StatusDuplicateOkWarning:   "duplicate ok",
	StatusExtFh21:              "extfh 21",
	StatusExtFh37:              "extfh 37",
	StatusExtFh49:              "extfh 49",
	StatusInvalidFileOperation: "invalid file operation",
	StatusClosedWithLock:       "closed with lock",
	StatusAcuFhCloseReel:       "close reel",
	StatusUnmanagedError:       "unmanaged error",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status %d", int(s))
}

// IsOK reports whether the status counts as success
func (s Status) IsOK() bool {
	switch s {
	case StatusOk, StatusNoSupportWarning, StatusDuplicateOkWarning, StatusClosedWithLock:
		return true
	}
	return false
}

// IsLock reports whether the status is lock contention
func (s Status) IsLock() bool {
	return s == StatusRecordLocked || s == StatusFileLocked
}

// IsNotFound reports the benign "no record" status
func (s Status) IsNotFound() bool {
	return s == StatusNotFound
}
