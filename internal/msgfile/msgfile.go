// Package msgfile implements the message-file emitter and reader of
// spec section 4.3: small per-job text files with a destination
// section and an optional options section, the message name format,
// and the shared AFD unique-id counter message names draw from.
package msgfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Message is the parsed content of a message file: exactly one
// destination URL and an optional, possibly empty, options block.
type Message struct {
	Destination string
	Options     string
}

// ErrMalformed is returned by Read when a message file does not carry
// exactly one destination URL in a [destination] section — the
// MalformedMessage event condition of spec section 4.3.
type ErrMalformed struct {
	Path   string
	Reason string
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("msgfile: malformed message %s: %s", e.Path, e.Reason)
}

// Write materializes msg at path using the writer contract: create or
// truncate (mode 0600), full write, fsync, close. On any failure the partial file is
// unlinked so a caller-driven retry starts clean.
func Write(path string, msg Message) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("msgfile: create %s: %w", path, err)
	}

	var body strings.Builder
	body.WriteString("[destination]\n")
	body.WriteString(msg.Destination)
	body.WriteString("\n\n")
	if msg.Options != "" {
		body.WriteString("[options]\n")
		body.WriteString(msg.Options)
		body.WriteString("\n")
	}

	if _, err := f.WriteString(body.String()); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("msgfile: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("msgfile: fsync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("msgfile: close %s: %w", path, err)
	}
	return nil
}

// Read opens path read-only and parses it by scanning for bracketed
// section headers. Unknown sections are ignored. A file with zero or
// more than one recipient URL in [destination] is malformed.
func Read(path string) (Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return Message{}, fmt.Errorf("msgfile: open %s: %w", path, err)
	}
	defer f.Close()

	var msg Message
	var section string
	var destLines, optLines []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(trimmed[1 : len(trimmed)-1])
			continue
		}
		switch section {
		case "destination":
			if trimmed != "" {
				destLines = append(destLines, trimmed)
			}
		case "options":
			optLines = append(optLines, line)
		default:
			// Unknown section: ignored per spec section 4.3's reader contract.
		}
	}
	if err := scanner.Err(); err != nil {
		return Message{}, fmt.Errorf("msgfile: scan %s: %w", path, err)
	}

	if len(destLines) != 1 {
		return Message{}, &ErrMalformed{Path: path, Reason: fmt.Sprintf("expected exactly one recipient URL, found %d", len(destLines))}
	}
	msg.Destination = destLines[0]
	msg.Options = strings.TrimRight(strings.Join(optLines, "\n"), "\n")
	return msg, nil
}
