package analysis

import (
	"errors"

	"go.uber.org/zap"

	"github.com/temirov/deptrack/internal/execshell"
	"github.com/temirov/deptrack/internal/revision"
	"github.com/temirov/deptrack/internal/revision/gitcli"
	"github.com/temirov/deptrack/internal/revision/gogit"
)

var (
	// ErrUnsupportedAdapter reports an unknown adapter name.
	ErrUnsupportedAdapter = errors.New("unsupported revision adapter")
	// ErrAdapterNotConfigured reports a service built without a revision adapter.
	ErrAdapterNotConfigured = errors.New("revision adapter not configured")
)

// AdapterProvider opens the revision adapter for a repository.
type AdapterProvider func(logger *zap.Logger, repositoryPath string, kind AdapterKind) (revision.Adapter, error)

// ResolveAdapter opens the adapter named by kind against repositoryPath.
func ResolveAdapter(logger *zap.Logger, repositoryPath string, kind AdapterKind) (revision.Adapter, error) {
	switch kind {
	case AdapterGoGit:
		adapter, openError := gogit.Open(repositoryPath)
		if openError != nil {
			return nil, openError
		}
		return adapter, nil
	case AdapterGit, "":
		shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
		if executorError != nil {
			return nil, executorError
		}
		adapter, adapterError := gitcli.NewAdapter(shellExecutor, repositoryPath)
		if adapterError != nil {
			return nil, adapterError
		}
		return adapter, nil
	default:
		return nil, ErrUnsupportedAdapter
	}
}
