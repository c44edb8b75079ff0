package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/repotrim/repotrim/pkg/gitstore"
	"github.com/repotrim/repotrim/pkg/object"
)

// errStoreUnavailable marks failures to locate or open the target
// repository, as opposed to errors from working against it.
var errStoreUnavailable = errors.New("store unavailable")

type globalOptions struct {
	storeDir string
	gitDir   string
	verbose  bool
	quiet    bool
}

// openRepository resolves the target from --store / --git. With neither
// flag it looks for a repotrim store in the working directory, then falls
// back to a git repository. The returned root anchors the config file and
// the id-map journal.
func (o *globalOptions) openRepository() (object.Repository, string, error) {
	if o.storeDir != "" && o.gitDir != "" {
		return nil, "", fmt.Errorf("--store and --git are mutually exclusive")
	}

	switch {
	case o.storeDir != "":
		return o.openStore(o.storeDir)
	case o.gitDir != "":
		return o.openGit(o.gitDir)
	}

	if st, err := os.Stat(filepath.Join(".", "objects")); err == nil && st.IsDir() {
		return o.openStore(".")
	}
	repo, root, err := o.openGit(".")
	if err != nil {
		return nil, "", fmt.Errorf("%w: no repository here (use --store or --git)", errStoreUnavailable)
	}
	return repo, root, nil
}

func (o *globalOptions) openStore(dir string) (object.Repository, string, error) {
	st, err := os.Stat(dir)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s", errStoreUnavailable, err)
	}
	if !st.IsDir() {
		return nil, "", fmt.Errorf("%w: %s is not a directory", errStoreUnavailable, dir)
	}
	return object.NewFSStore(dir), dir, nil
}

func (o *globalOptions) openGit(dir string) (object.Repository, string, error) {
	repo, err := gitstore.Open(dir)
	if err != nil {
		return nil, "", fmt.Errorf("%w: open git repository %s: %s", errStoreUnavailable, dir, err)
	}
	return repo, dir, nil
}

// journalPath returns where the id-map journal lives for a repository root.
func journalPath(root string) string {
	return filepath.Join(root, ".repotrim", "idmap.db")
}
