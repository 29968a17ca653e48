package vm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/jbweber/strata/internal/logger"
	"github.com/jbweber/strata/internal/storage"
)

// Storage is the set of volumes of one VM, keyed by volume name.
type Storage struct {
	vmName  string
	log     logger.Logger
	volumes map[string]*storage.Volume
}

// New groups volumes under vmName. Later volumes replace earlier ones
// with the same name.
func New(vmName string, volumes ...*storage.Volume) *Storage {
	s := &Storage{
		vmName:  vmName,
		log:     logger.AddContext(logger.Log, logger.Ctx{"vm": vmName}),
		volumes: make(map[string]*storage.Volume, len(volumes)),
	}
	for _, v := range volumes {
		s.volumes[v.Name()] = v
	}
	return s
}

// VMName returns the VM the volumes belong to.
func (s *Storage) VMName() string { return s.vmName }

// Names returns the volume names, sorted.
func (s *Storage) Names() []string {
	names := make([]string, 0, len(s.volumes))
	for name := range s.volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Volume returns the named volume.
func (s *Storage) Volume(name string) (*storage.Volume, bool) {
	v, ok := s.volumes[name]
	return v, ok
}

// each runs fn on every volume concurrently.
func (s *Storage) each(ctx context.Context, op string, fn func(*storage.Volume, context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.Names() {
		v := s.volumes[name]
		g.Go(func() error {
			if err := fn(v, gctx); err != nil {
				return fmt.Errorf("failed to %s volume %s: %w", op, v.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Create creates every volume.
func (s *Storage) Create(ctx context.Context) error {
	return s.each(ctx, "create", (*storage.Volume).Create)
}

// Start prepares every volume for the VM to run.
func (s *Storage) Start(ctx context.Context) error {
	if err := s.each(ctx, "start", (*storage.Volume).Start); err != nil {
		return err
	}
	s.log.Info("Started volumes", logger.Ctx{"count": len(s.volumes)})
	return nil
}

// Stop commits or discards what the VM wrote on every volume.
func (s *Storage) Stop(ctx context.Context) error {
	if err := s.each(ctx, "stop", (*storage.Volume).Stop); err != nil {
		return err
	}
	s.log.Info("Stopped volumes", logger.Ctx{"count": len(s.volumes)})
	return nil
}

// Verify checks that every volume can be started.
func (s *Storage) Verify(ctx context.Context) error {
	return s.each(ctx, "verify", (*storage.Volume).Verify)
}

// Remove removes every volume. Failures do not stop the remaining
// removals; all of them are returned.
func (s *Storage) Remove(ctx context.Context) error {
	var errs []error
	for _, name := range s.Names() {
		if err := s.volumes[name].Remove(ctx); err != nil {
			s.log.Warn("Failed to remove volume", logger.Ctx{"volume": name, "err": err})
			errs = append(errs, fmt.Errorf("failed to remove volume %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// CloneFrom imports every volume that src has under the same name.
func (s *Storage) CloneFrom(ctx context.Context, src *Storage) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.Names() {
		srcVol, ok := src.volumes[name]
		if !ok {
			continue
		}
		v := s.volumes[name]
		g.Go(func() error {
			if err := v.ImportVolume(gctx, srcVol); err != nil {
				return fmt.Errorf("failed to clone volume %s from %s: %w", name, src.vmName, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Resize grows the named volume.
func (s *Storage) Resize(ctx context.Context, name string, size int64) error {
	v, ok := s.volumes[name]
	if !ok {
		return fmt.Errorf("VM %s has no volume %s", s.vmName, name)
	}
	return v.Resize(ctx, size)
}

// OutdatedVolumes returns the names of volumes whose snapshot predates the
// current revision of their source.
func (s *Storage) OutdatedVolumes() []string {
	var out []string
	for _, name := range s.Names() {
		if s.volumes[name].IsOutdated() {
			out = append(out, name)
		}
	}
	return out
}

// DiskUtilization returns the bytes allocated across all volumes.
func (s *Storage) DiskUtilization() int64 {
	var total int64
	for _, v := range s.volumes {
		total += v.Usage()
	}
	return total
}

// BlockDevices returns the devices to attach, ordered by volume name.
func (s *Storage) BlockDevices() []storage.BlockDevice {
	devs := make([]storage.BlockDevice, 0, len(s.volumes))
	for _, name := range s.Names() {
		devs = append(devs, s.volumes[name].BlockDevice())
	}
	return devs
}
