// Quill CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/quill/internal/dagger"
)

// Quill is the main module for the quill CI/CD pipeline
type Quill struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Quill CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", ".quill", "build", "tmp"]
	source *dagger.Directory,
) *Quill {
	return &Quill{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container for the given
// platform with gcc, libsqlite3-dev, CGO enabled, and the project source
// mounted. An empty platform uses the engine's own.
//
// go-sqlite3 and sqlite-vec both need cgo, so tests, builds and linting all
// run on top of it.
func (q *Quill) goContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build-"+string(platform))).
		WithWorkdir("/src").
		WithDirectory("/src", q.Source)
}

// Test runs the quill unit tests via "go test"
//
// +check
func (q *Quill) Test(ctx context.Context) (string, error) {
	return q.goContainer("").
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
