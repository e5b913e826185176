// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/papercomputeco/quill/pkg/vector"
	"github.com/papercomputeco/quill/pkg/vector/chroma"
	"github.com/papercomputeco/quill/pkg/vector/inmemory"
	"github.com/papercomputeco/quill/pkg/vector/qdrant"
	"github.com/papercomputeco/quill/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	TargetURL    string
	Collection   string
	SQLitePath   string
	Dimensions   uint
	Logger       *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "inmemory":
		return inmemory.NewDriver(), nil

	case "sqlite", "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.SQLitePath,
			Dimensions: o.Dimensions,
		}, o.Logger)

	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
		}, o.Logger)

	case "qdrant":
		host, port, useTLS, err := ParseQdrantTarget(o.TargetURL)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:           host,
			Port:           port,
			UseTLS:         useTLS,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// ParseQdrantTarget accepts "host", "host:port" or a URL such as
// "https://host:6334" and returns the gRPC connection parameters.
func ParseQdrantTarget(target string) (host string, port int, useTLS bool, err error) {
	if target == "" {
		return "", 0, false, fmt.Errorf("qdrant target is required")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", 0, false, fmt.Errorf("parsing qdrant target: %w", err)
		}
		useTLS = u.Scheme == "https"
		target = u.Host
	}

	h, p, splitErr := net.SplitHostPort(target)
	if splitErr != nil {
		return target, qdrant.DefaultPort, useTLS, nil
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", p, err)
	}
	return h, port, useTLS, nil
}
