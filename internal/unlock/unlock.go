// Package unlock disconnects network clients holding shared basemap files
// open, so the nightly exports can replace them.
package unlock

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/hostctl"
	"github.com/nnww-gis/gisops/internal/run"
)

// OpenFiles lists and disconnects open files on a file server.
// *hostctl.Controller implements it.
type OpenFiles interface {
	ListOpenFiles(ctx context.Context, server string) ([]hostctl.OpenFile, error)
	DisconnectOpenFile(ctx context.Context, server, id string) error
}

// Unlocker releases every configured file.
type Unlocker struct {
	files OpenFiles
	rc    *run.Context
	cfg   config.UnlockConfig
}

func New(files OpenFiles, rc *run.Context, cfg config.UnlockConfig) *Unlocker {
	return &Unlocker{files: files, rc: rc, cfg: cfg}
}

// Run closes each file in turn. A failure is recorded and the next file
// is still attempted.
func (u *Unlocker) Run(ctx context.Context) {
	for _, f := range u.cfg.Files {
		n, err := u.CloseFile(ctx, f)
		if err != nil {
			u.rc.Record(run.Fail("CloseFile", run.Cause(err), "file", f))
			continue
		}
		u.rc.Logger().Info("Disconnected network users", zap.String("file", f), zap.Int("count", n))
	}
}

// CloseFile disconnects every open handle on file or anything beneath it.
// It returns the number of handles closed.
func (u *Unlocker) CloseFile(ctx context.Context, file string) (int, error) {
	u.rc.Logger().Info("Disconnecting all network users", zap.String("file", file))
	open, err := u.files.ListOpenFiles(ctx, u.cfg.Server)
	if err != nil {
		return 0, err
	}
	prefix := LocalPrefix(file, u.cfg.SharePrefix, u.cfg.LocalPrefix)
	closed := 0
	for _, of := range open {
		if !strings.HasPrefix(strings.ToLower(of.Path), prefix) {
			continue
		}
		if err := u.files.DisconnectOpenFile(ctx, u.cfg.Server, of.ID); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// LocalPrefix maps a share path to the lowercase path the file server
// reports for it: \\Arctic\Desktop_GIS\x.shp becomes e:\desktop_gis\x.shp.
func LocalPrefix(file, sharePrefix, localPrefix string) string {
	p := strings.ToLower(file)
	share := strings.ToLower(sharePrefix)
	if share != "" && strings.HasPrefix(p, share) {
		p = strings.ToLower(localPrefix) + p[len(share):]
	}
	return p
}
