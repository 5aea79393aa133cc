package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/sightingdb-go/internal/telemetry/logger"
)

// ExpiryWarning is how close to NotAfter a loaded certificate starts
// producing warnings.
const ExpiryWarning = 30 * 24 * time.Hour

// CertReloader serves the current key pair and reloads it when the files
// change.
type CertReloader struct {
	certFile string
	keyFile  string
	logger   logger.Logger
	debounce time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	cert     *tls.Certificate
	notAfter time.Time

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a CertReloader.
type Option func(*CertReloader)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(r *CertReloader) {
		r.logger = l
	}
}

// WithDebounce sets how long the reloader waits for a burst of file events
// to settle.
func WithDebounce(d time.Duration) Option {
	return func(r *CertReloader) {
		r.debounce = d
	}
}

// NewCertReloader loads the key pair once. Call Start to follow changes.
func NewCertReloader(certFile, keyFile string, opts ...Option) (*CertReloader, error) {
	r := &CertReloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger.Default(),
		debounce: 200 * time.Millisecond,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload reads the key pair from disk. On failure the previous certificate
// stays in service.
func (r *CertReloader) Reload() error {
	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("tlsroots: load key pair: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("tlsroots: parse leaf: %w", err)
	}
	cert.Leaf = leaf

	r.mu.Lock()
	r.cert = &cert
	r.notAfter = leaf.NotAfter
	r.mu.Unlock()

	r.logger.Info("tls certificate loaded",
		"cert_file", r.certFile,
		"subject", leaf.Subject.String(),
		"not_after", leaf.NotAfter.UTC().Format(time.RFC3339))
	if left := leaf.NotAfter.Sub(r.now()); left < ExpiryWarning {
		r.logger.Warn("tls certificate expires soon", "cert_file", r.certFile, "remaining", left.Round(time.Hour).String())
	}
	return nil
}

// NotAfter returns the expiry of the certificate in service.
func (r *CertReloader) NotAfter() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notAfter
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *CertReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cert, nil
}

// ServerConfig returns a TLS config that always presents the latest
// certificate.
func (r *CertReloader) ServerConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}
}

// Start watches the directories holding the key pair. Directories rather
// than files are watched so that rename-into-place updates are seen.
func (r *CertReloader) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	dirs := map[string]struct{}{
		filepath.Dir(r.certFile): {},
		filepath.Dir(r.keyFile):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return fmt.Errorf("tlsroots: watch %s: %w", dir, err)
		}
	}
	r.watcher = w

	r.wg.Add(1)
	go r.loop()
	return nil
}

func (r *CertReloader) loop() {
	defer r.wg.Done()

	certBase, keyBase := filepath.Base(r.certFile), filepath.Base(r.keyFile)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(ev.Name)
			if base != certBase && base != keyBase {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := r.Reload(); err != nil {
				r.logger.Error("tls certificate reload failed", "error", err)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("tls watcher error", "error", err)

		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Stop ends watching. It is safe to call more than once, and without Start.
func (r *CertReloader) Stop() error {
	var err error
	r.stopOnce.Do(func() {
		close(r.done)
		if r.watcher != nil {
			err = r.watcher.Close()
		}
		r.wg.Wait()
	})
	return err
}
