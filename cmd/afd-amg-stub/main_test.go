package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/afdcore/afd/internal/catalog"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMatchOrInternJobReusesMatchingFileList(t *testing.T) {
	c := openTestCatalog(t)
	dirPos, err := c.InternDir("/afd/incoming/host1/d")
	require.NoError(t, err)

	configured, err := c.InternJob(dirPos, []string{"*.txt"}, nil, nil, "host1", "host1", '5')
	require.NoError(t, err)

	got, err := matchOrInternJob(c, dirPos, "host1", "report.txt")
	require.NoError(t, err)
	require.Equal(t, configured, got)

	jobs, err := c.JobsForDir(dirPos)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
}

func TestMatchOrInternJobFallsBackWhenNoPatternMatches(t *testing.T) {
	c := openTestCatalog(t)
	dirPos, err := c.InternDir("/afd/incoming/host1/d")
	require.NoError(t, err)

	_, err = c.InternJob(dirPos, []string{"*.txt"}, nil, nil, "host1", "host1", '5')
	require.NoError(t, err)

	got, err := matchOrInternJob(c, dirPos, "host1", "image.png")
	require.NoError(t, err)

	jobs, err := c.JobsForDir(dirPos)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, got, jobs[1].JobID)
	require.Equal(t, []string{"image.png"}, jobs[1].FileList)
}

func TestMatchOrInternJobInternsFreshJobForEmptyDir(t *testing.T) {
	c := openTestCatalog(t)
	dirPos, err := c.InternDir("/afd/incoming/host1/d")
	require.NoError(t, err)

	got, err := matchOrInternJob(c, dirPos, "host1", "a.txt")
	require.NoError(t, err)
	require.NotEmpty(t, got)
}
