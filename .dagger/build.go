package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/quill/internal/dagger"
)

// Build and return directory of quill binaries for each linux platform
func (q *Quill) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	platforms := []dagger.Platform{"linux/amd64", "linux/arm64"}

	outputs := dag.Directory()

	for _, platform := range platforms {
		path := string(platform) + "/"

		build := q.goContainer(platform).
			WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/quill"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (q *Quill) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/papercomputeco/quill/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/papercomputeco/quill/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/papercomputeco/quill/pkg/utils.Buildtime=%s'", buildtime),
	}

	return q.Build(ctx, strings.Join(ldflags, " "))
}
