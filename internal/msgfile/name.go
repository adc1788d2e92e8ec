package msgfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Name is a parsed queue entry / message file name of the form
// <priority>_<epoch_seconds>_<unique_counter>_<job_id>. The priority
// byte sorts lexicographically (lower codepoint = higher priority).
type Name struct {
	Priority     byte
	EpochSeconds int64
	Unique       uint32
	JobID        string
}

// String renders n back into the canonical <priority>_<epoch>_<unique>_<job_id>
// form, zero-padding the unique counter to 5 digits.
func (n Name) String() string {
	return fmt.Sprintf("%c_%d_%05d_%s", n.Priority, n.EpochSeconds, n.Unique, n.JobID)
}

// ParseName parses a message name, returning an error if it does not
// have exactly four underscore-separated fields.
func ParseName(raw string) (Name, error) {
	parts := strings.SplitN(raw, "_", 4)
	if len(parts) != 4 {
		return Name{}, fmt.Errorf("msgfile: malformed message name %q", raw)
	}
	if len(parts[0]) != 1 {
		return Name{}, fmt.Errorf("msgfile: malformed priority in %q", raw)
	}
	epoch, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Name{}, fmt.Errorf("msgfile: malformed epoch in %q: %w", raw, err)
	}
	unique, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return Name{}, fmt.Errorf("msgfile: malformed unique counter in %q: %w", raw, err)
	}
	if parts[3] == "" {
		return Name{}, fmt.Errorf("msgfile: missing job_id in %q", raw)
	}
	return Name{
		Priority:     parts[0][0],
		EpochSeconds: epoch,
		Unique:       uint32(unique),
		JobID:        parts[3],
	}, nil
}

// ExtractJobID is the extract_job_id operation spec section 8's
// quantified invariant 5 names: every queue entry's job_id must
// resolve through lookup_job or produce an unknown-job warning.
func ExtractJobID(msgName string) (string, error) {
	n, err := ParseName(msgName)
	if err != nil {
		return "", err
	}
	return n.JobID, nil
}
