package revision

import (
	"context"
	"fmt"
	"path"
	"runtime"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	snapshotListErrorTemplateConstant  = "list files at %s: %w"
	snapshotReadErrorTemplateConstant  = "read %s at %s: %w"
	snapshotWriteErrorTemplateConstant = "stage %s: %w"
	snapshotDirectoryPermissions       = 0o755
	snapshotFilePermissions            = 0o644
)

// SnapshotOptions selects the files staged by Snapshot.
type SnapshotOptions struct {
	// FileNames are matched against the base name of every tracked path.
	FileNames []string
	// Parallelism bounds concurrent reads; values below one use the number of CPUs.
	Parallelism int
}

type stagedFile struct {
	path    string
	content string
}

// Snapshot materializes the files at ref whose base name matches one of options.FileNames into an
// in-memory filesystem rooted at "/". Reads run concurrently; the first failure cancels the rest.
func Snapshot(executionContext context.Context, adapter Adapter, ref string, options SnapshotOptions) (afero.Fs, error) {
	files, listError := adapter.ListFiles(executionContext, ref)
	if listError != nil {
		return nil, fmt.Errorf(snapshotListErrorTemplateConstant, ref, listError)
	}

	wanted := make(map[string]struct{}, len(options.FileNames))
	for _, fileName := range options.FileNames {
		wanted[fileName] = struct{}{}
	}

	selected := make([]string, 0)
	for _, filePath := range files {
		normalizedPath := NormalizePath(filePath)
		if _, matches := wanted[path.Base(normalizedPath)]; matches {
			selected = append(selected, normalizedPath)
		}
	}

	limit := options.Parallelism
	if limit < 1 {
		limit = runtime.GOMAXPROCS(0)
	}

	staged := make([]stagedFile, len(selected))
	readGroup, readContext := errgroup.WithContext(executionContext)
	readGroup.SetLimit(limit)
	for fileIndex, filePath := range selected {
		readGroup.Go(func() error {
			if contextError := readContext.Err(); contextError != nil {
				return contextError
			}
			content, readError := adapter.ReadFile(readContext, ref, filePath)
			if readError != nil {
				return fmt.Errorf(snapshotReadErrorTemplateConstant, filePath, ref, readError)
			}
			staged[fileIndex] = stagedFile{path: filePath, content: content}
			return nil
		})
	}
	if waitError := readGroup.Wait(); waitError != nil {
		return nil, waitError
	}

	filesystem := afero.NewMemMapFs()
	for _, file := range staged {
		absolutePath := "/" + file.path
		if directoryError := filesystem.MkdirAll(path.Dir(absolutePath), snapshotDirectoryPermissions); directoryError != nil {
			return nil, fmt.Errorf(snapshotWriteErrorTemplateConstant, file.path, directoryError)
		}
		if writeError := afero.WriteFile(filesystem, absolutePath, []byte(file.content), snapshotFilePermissions); writeError != nil {
			return nil, fmt.Errorf(snapshotWriteErrorTemplateConstant, file.path, writeError)
		}
	}
	return filesystem, nil
}
