package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"rmscore.evalgo.org/catalog"
	"rmscore.evalgo.org/content"
	"rmscore.evalgo.org/lock"
	"rmscore.evalgo.org/model"
	"rmscore.evalgo.org/rms"
)

// connection bundles the System this command run is operating on with
// the resources that need an orderly Close once the command returns.
type connection struct {
	sys *rms.System
	cat *catalog.Catalog
	lk  *lock.WriterLock
}

func (c *connection) Close() {
	if c.lk != nil {
		_ = c.lk.Release(context.Background())
		_ = c.lk.Close()
	}
	if c.cat != nil {
		c.cat.Close()
	}
}

// connect opens the Catalog and Content Store named by the bound
// configuration and, if redis_url is set, acquires the cross-process
// writer lock for the duration of the command.
func connect(ctx context.Context) (*connection, error) {
	cat, err := catalog.Open(ctx, viper.GetString("catalog_dsn"))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	store, err := content.NewDirStore(viper.GetString("content_dir"))
	if err != nil {
		cat.Close()
		return nil, fmt.Errorf("open content store: %w", err)
	}

	conn := &connection{sys: rms.New(cat, store), cat: cat}

	if url := viper.GetString("redis_url"); url != "" {
		dbid, err := cat.DBID(ctx)
		if err != nil {
			conn.Close()
			return nil, err
		}
		lk, err := lock.NewWriterLock(url, dbid)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := lk.Acquire(ctx, 30*time.Second); err != nil {
			conn.Close()
			return nil, fmt.Errorf("acquire writer lock: %w", err)
		}
		conn.lk = lk
	}

	return conn, nil
}

func parseLogLevel(s string) (logrus.Level, error) {
	return logrus.ParseLevel(s)
}

// parseFullID parses a "kind:id" argument, e.g. "resource:ab12cd34",
// into a model.FullID.
func parseFullID(s string) (model.FullID, error) {
	kindStr, id, found := splitOnce(s, ':')
	if !found {
		return model.FullID{}, fmt.Errorf("expected kind:id, got %q", s)
	}
	kind, ok := model.KindFromString(kindStr)
	if !ok {
		return model.FullID{}, fmt.Errorf("unknown entity kind %q", kindStr)
	}
	return model.FullID{Kind: kind, ID: id}, nil
}

func splitOnce(s string, sep byte) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
