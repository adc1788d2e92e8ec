package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/afdcore/afd/internal/afderr"
	"github.com/afdcore/afd/internal/fd"
)

// resolveFiles lists the staged files for one queue entry. The
// message-generator side stages every job's files under
// files/outgoing/<msg_name>/ before the name is enqueued (spec section
// 4.3's directory layout); this function only reads that layout back.
// A missing or empty staging directory can never resolve on a later
// retry, so it is reported as structural (spec section 7): the
// dispatcher drops the entry instead of retrying it forever.
func resolveFiles(workDir string, e *fd.Entry) ([]string, string, error) {
	dir := filepath.Join(workDir, "files", "outgoing", e.MsgName)
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", afderr.Newf(afderr.KindStructural, "afd-fd: resolve %s: %w", e.MsgName, err)
	}

	var files []string
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, ent.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, "", afderr.Newf(afderr.KindStructural, "afd-fd: resolve %s: no staged files in %s", e.MsgName, dir)
	}
	return files, "", nil
}
