package registry

import (
	"os"
	"time"

	"github.com/bricks-cloud/dkpii/internal/pii/recognizer"
	"github.com/bricks-cloud/dkpii/internal/telemetry"
	"go.uber.org/zap"
)

// Reloader polls a recognizers file and loads it into the registry whenever
// its modification time changes. Recognizers whose definitions disappear from
// the file fall back to the matching default, or are removed when there is
// none.
type Reloader struct {
	reg          *Registry
	path         string
	opts         []recognizer.Option
	defaults     map[key]recognizer.EntityRecognizer
	loaded       map[key]bool
	lastModified time.Time
	interval     time.Duration
	done         chan bool
	log          *zap.Logger
}

// NewReloader expects the file to be loaded into reg already.
func NewReloader(reg *Registry, path string, interval time.Duration, defaults []recognizer.EntityRecognizer, log *zap.Logger, opts ...recognizer.Option) (*Reloader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	built, err := readFile(path, opts...)
	if err != nil {
		return nil, err
	}

	ds := map[key]recognizer.EntityRecognizer{}
	for _, d := range defaults {
		ds[keyOf(d)] = d
	}

	return &Reloader{
		reg:          reg,
		path:         path,
		opts:         opts,
		defaults:     ds,
		loaded:       keys(built),
		lastModified: info.ModTime(),
		interval:     interval,
		done:         make(chan bool),
		log:          log,
	}, nil
}

func keys(rs []recognizer.EntityRecognizer) map[key]bool {
	ks := map[key]bool{}
	for _, r := range rs {
		ks[keyOf(r)] = true
	}

	return ks
}

// Reload loads the file if it changed since the last successful load.
func (r *Reloader) Reload() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, err
	}

	if !info.ModTime().After(r.lastModified) {
		return false, nil
	}

	built, err := readFile(r.path, r.opts...)
	if err != nil {
		return false, err
	}

	r.reg.Add(built...)

	current := keys(built)
	for k := range r.loaded {
		if current[k] {
			continue
		}

		if d, ok := r.defaults[k]; ok {
			r.reg.Add(d)
			continue
		}

		r.reg.Remove(k.language, k.entity)
	}

	r.loaded = current
	r.lastModified = info.ModTime()
	return true, nil
}

func (r *Reloader) Listen() {
	ticker := time.NewTicker(r.interval)
	r.log.Info("recognizer reloader started listening for file updates", zap.String("path", r.path))

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				r.log.Info("recognizer reloader stopped")
				return
			case <-ticker.C:
				reloaded, err := r.Reload()
				if err != nil {
					telemetry.Incr("dkpii.registry.reload.error", nil, 1)
					r.log.Sugar().Debugf("recognizer reloader failed to load %s: %v", r.path, err)
					continue
				}

				if reloaded {
					telemetry.Incr("dkpii.registry.reload.success", nil, 1)
					r.log.Sugar().Infof("recognizer reloader loaded %s, registry holds %d recognizers", r.path, r.reg.Len())
				}
			}
		}
	}()
}

func (r *Reloader) Stop() {
	r.log.Info("shutting down recognizer reloader...")

	r.done <- true
}
