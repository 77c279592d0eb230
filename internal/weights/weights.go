// Package weights keeps model files in a local cache directory, fetching them from remote
// storage the first time a model is requested.
package weights

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	WeightsExt  = ".onnx"
	MetadataExt = ".json"
)

type Files struct {
	Weights  string
	Metadata string
}

type Fetcher interface {
	Fetch(ctx context.Context, src, dst string) error
}

type Cache struct {
	Dir     string
	BaseURL string

	fetcher Fetcher
	logger  logrus.FieldLogger
	group   singleflight.Group
}

func NewCache(dir, baseURL string, fetcher Fetcher, logger logrus.FieldLogger) *Cache {
	return &Cache{
		Dir:     dir,
		BaseURL: baseURL,
		fetcher: fetcher,
		logger:  logger,
	}
}

func (c *Cache) Paths(modelName string) Files {
	return Files{
		Weights:  filepath.Join(c.Dir, modelName+WeightsExt),
		Metadata: filepath.Join(c.Dir, modelName+MetadataExt),
	}
}

// Ensure makes sure the weights and metadata of modelName exist locally and returns their
// paths. The download itself outlives any single caller's context; each caller stops waiting
// when its own ctx is done.
func (c *Cache) Ensure(ctx context.Context, modelName string) (Files, error) {
	if err := validateName(modelName); err != nil {
		return Files{}, err
	}

	files := c.Paths(modelName)
	if exists(files.Weights) && exists(files.Metadata) {
		return files, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(modelName, func() (interface{}, error) {
		if err := os.MkdirAll(c.Dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create weights directory %s", c.Dir)
		}
		for _, dst := range []string{files.Weights, files.Metadata} {
			if exists(dst) {
				continue
			}
			if err := c.download(fetchCtx, filepath.Base(dst), dst); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return Files{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Files{}, res.Err
		}
		if res.Shared {
			c.logger.Debugf("Shared in-flight download for model %s", modelName)
		}
		return files, nil
	}
}

func (c *Cache) download(ctx context.Context, name, dst string) error {
	src := strings.TrimSuffix(c.BaseURL, "/") + "/" + name
	tmp := dst + ".part"

	c.logger.Infof("Downloading %s to %s", src, dst)
	if err := c.fetcher.Fetch(ctx, src, tmp); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "download %s", src)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "move %s into place", dst)
	}
	return nil
}

func validateName(modelName string) error {
	if modelName == "" {
		return errors.New("model name is empty")
	}
	if strings.ContainsAny(modelName, `/\`) || strings.Contains(modelName, "..") {
		return errors.Errorf("invalid model name %q", modelName)
	}
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
