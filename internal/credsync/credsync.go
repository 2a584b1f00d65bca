// Package credsync imports provider credentials from JSON files on disk
// into the credential pool, and keeps them in sync as files change.
package credsync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adatry/adatry/internal/logging"
	"github.com/adatry/adatry/internal/models"
	"github.com/adatry/adatry/internal/store"
)

// CredentialFile is the on-disk shape of one credential
type CredentialFile struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
	Endpoint string `json:"endpoint,omitempty"`
	Label    string `json:"label,omitempty"`
	Path     string `json:"-"`
}

// DiscoverCredentialFiles scans a directory for credential files
func DiscoverCredentialFiles(dir string) ([]CredentialFile, error) {
	var files []CredentialFile

	entries, err := os.ReadDir(dir)
	if err != nil {
		// Return empty slice for non-existent or inaccessible paths
		if os.IsNotExist(err) || os.IsPermission(err) {
			return []CredentialFile{}, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		var cf CredentialFile
		if json.Unmarshal(data, &cf) != nil {
			continue
		}
		if cf.Token == "" || !models.Provider(cf.Provider).Valid() {
			continue
		}

		cf.Path = filepath.Join(dir, entry.Name())
		files = append(files, cf)
	}

	return files, nil
}

// credentialID derives a stable pool ID from the file name, so the same
// file always maps to the same credential and its usage count survives
// rescans.
func credentialID(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 63 {
		name = name[:63]
	}
	return "file_" + name
}

// Syncer keeps the credential pool in sync with a directory of files
type Syncer struct {
	store    store.Store
	dir      string
	interval time.Duration
	logger   *logging.Logger

	mu       sync.Mutex
	lastScan time.Time
}

// NewSyncer creates a syncer for the given directory
func NewSyncer(s store.Store, dir string, interval time.Duration, logger *logging.Logger) *Syncer {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &Syncer{
		store:    s,
		dir:      dir,
		interval: interval,
		logger:   logger,
	}
}

// ScanAndSync imports credential files into the pool. Existing entries
// keep their usage counts; files that vanished are removed from the pool.
func (sy *Syncer) ScanAndSync() (newCount, updatedCount int, err error) {
	files, err := DiscoverCredentialFiles(sy.dir)
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]bool)
	for _, cf := range files {
		id := credentialID(cf.Path)
		seen[id] = true

		cred := &models.Credential{
			ID:       id,
			Provider: models.Provider(cf.Provider),
			Label:    cf.Label,
			Endpoint: cf.Endpoint,
			Token:    cf.Token,
		}

		if existing, ok := sy.store.GetCredential(id); ok {
			cred.UsageCount = existing.UsageCount
			cred.CreatedAt = existing.CreatedAt
			sy.store.SetCredential(cred)
			updatedCount++
		} else {
			sy.store.SetCredential(cred)
			newCount++
		}
	}

	// Drop file-sourced credentials whose files are gone. Entries added
	// through the API have different ID shapes and are left alone.
	all, err := sy.store.ListCredentials("")
	if err != nil {
		return newCount, updatedCount, err
	}
	for _, cred := range all {
		if strings.HasPrefix(cred.ID, "file_") && !seen[cred.ID] {
			sy.store.DeleteCredential(cred.ID)
			sy.logger.Info("credential file removed", "credential_id", cred.ID)
		}
	}

	sy.mu.Lock()
	sy.lastScan = time.Now()
	sy.mu.Unlock()
	return newCount, updatedCount, nil
}

// Watch starts a file watcher for credential directory changes.
func (sy *Syncer) Watch(ctx context.Context) error {
	if sy.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(sy.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
					if _, _, err := sy.ScanAndSync(); err != nil {
						sy.logger.Warn("credential sync failed", "error", err.Error())
					}
				}
			case <-watcher.Errors:
				// Ignore watcher errors; the periodic scan still runs.
			}
		}
	}()

	return nil
}

// Start performs an initial scan and starts periodic and watcher-based sync.
func (sy *Syncer) Start(ctx context.Context) error {
	newCount, updatedCount, err := sy.ScanAndSync()
	if err != nil {
		return err
	}
	sy.logger.Info("credential sync started",
		"dir", sy.dir,
		"new", newCount,
		"updated", updatedCount,
	)

	if err := sy.Watch(ctx); err != nil {
		return err
	}
	if sy.interval <= 0 {
		return nil
	}

	go func() {
		ticker := time.NewTicker(sy.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := sy.ScanAndSync(); err != nil {
					sy.logger.Warn("credential sync failed", "error", err.Error())
				}
			}
		}
	}()

	return nil
}

// LastScan returns the last scan time
func (sy *Syncer) LastScan() time.Time {
	sy.mu.Lock()
	defer sy.mu.Unlock()
	return sy.lastScan
}
