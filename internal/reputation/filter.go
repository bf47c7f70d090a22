package reputation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"linkedge/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Verdict is the tri-state result of a reputation check.
// Allowlisted takes precedence over Blocked.
type Verdict int

const (
	Clean Verdict = iota
	Blocked
	Allowlisted
)

func (v Verdict) String() string {
	switch v {
	case Blocked:
		return "blocked"
	case Allowlisted:
		return "allowlisted"
	default:
		return "clean"
	}
}

// snapshotData is the JSON shape of the curated reputation config
type snapshotData struct {
	// BlockedDomains match destination hostnames exactly (and their subdomains)
	BlockedDomains []string `json:"blocked_domains"`
	// BlockedTerms match anywhere in the destination URL (substring)
	BlockedTerms []string `json:"blocked_terms"`
	// AllowedDomains override a block for specific hostnames
	AllowedDomains []string `json:"allowed_domains"`
	// ReservedKeys are keys the classifier must never treat as links
	ReservedKeys []string `json:"reserved_keys"`
}

// snapshot is an immutable, pre-indexed view of the config. Requests read
// whichever snapshot is current; reloads swap the pointer, so the hot path
// never takes a lock and never re-reads the file.
type snapshot struct {
	version        int64
	blockedDomains map[string]bool
	blockedTerms   []string
	allowedDomains map[string]bool
	reservedKeys   map[string]bool
}

// Filter is the domain-reputation and reserved-key service.
// A blocked destination must never be served even when the link record
// still points at it: takedown decisions beat stale data.
type Filter struct {
	current atomic.Pointer[snapshot]
	log     *logger.Logger
	watcher *fsnotify.Watcher
}

// NewFromFile loads the JSON config and starts watching the file for
// changes. A missing file yields an empty (all-clean) filter, so the edge
// still serves traffic on a fresh deployment.
func NewFromFile(path string, log *logger.Logger) (*Filter, error) {
	f := &Filter{log: log.WithComponent("reputation")}

	snap, err := loadSnapshot(path, 1)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		f.log.Warn("reputation config missing, starting empty", "path", path)
		snap = emptySnapshot(1)
	}
	f.current.Store(snap)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	f.watcher = watcher

	// Watch the directory, not the file: editors and config rollouts
	// replace the file, which would drop a file-level watch
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	go f.watch(path)

	return f, nil
}

// NewStatic builds a filter from in-memory lists. Used by tests and by
// deployments that bake the config into the image.
func NewStatic(blockedDomains, blockedTerms, allowedDomains, reservedKeys []string, log *logger.Logger) *Filter {
	f := &Filter{log: log.WithComponent("reputation")}
	f.current.Store(buildSnapshot(snapshotData{
		BlockedDomains: blockedDomains,
		BlockedTerms:   blockedTerms,
		AllowedDomains: allowedDomains,
		ReservedKeys:   reservedKeys,
	}, 1))
	return f
}

// Check classifies a destination URL.
// The allowlist wins over every block rule.
func (f *Filter) Check(rawURL string) Verdict {
	snap := f.current.Load()

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		// Unparseable destinations are matched on terms only
		if snap.matchesTerm(strings.ToLower(rawURL)) {
			return Blocked
		}
		return Clean
	}

	host := strings.ToLower(parsed.Hostname())

	if snap.matchesDomain(snap.allowedDomains, host) {
		return Allowlisted
	}
	if snap.matchesDomain(snap.blockedDomains, host) {
		return Blocked
	}
	if snap.matchesTerm(strings.ToLower(rawURL)) {
		return Blocked
	}
	return Clean
}

// IsReservedKey reports whether a key is reserved for platform use
func (f *Filter) IsReservedKey(key string) bool {
	return f.current.Load().reservedKeys[strings.ToLower(key)]
}

// Version returns the snapshot version, incremented on every reload
func (f *Filter) Version() int64 {
	return f.current.Load().version
}

// Close stops the file watcher
func (f *Filter) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

// watch reloads the snapshot whenever the config file changes
func (f *Filter) watch(path string) {
	base := filepath.Base(path)
	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			next := f.current.Load().version + 1
			snap, err := loadSnapshot(path, next)
			if err != nil {
				// Keep serving the previous snapshot on a bad reload
				f.log.Error("reputation reload failed", "error", err, "path", path)
				continue
			}
			f.current.Store(snap)
			f.log.Info("reputation config reloaded",
				"version", snap.version,
				"blocked_domains", len(snap.blockedDomains),
				"blocked_terms", len(snap.blockedTerms),
			)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Error("reputation watcher error", "error", err)
		}
	}
}

func loadSnapshot(path string, version int64) (*snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var data snapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("invalid reputation config: %w", err)
	}

	return buildSnapshot(data, version), nil
}

func buildSnapshot(data snapshotData, version int64) *snapshot {
	snap := &snapshot{
		version:        version,
		blockedDomains: make(map[string]bool, len(data.BlockedDomains)),
		allowedDomains: make(map[string]bool, len(data.AllowedDomains)),
		reservedKeys:   make(map[string]bool, len(data.ReservedKeys)),
	}
	for _, d := range data.BlockedDomains {
		snap.blockedDomains[strings.ToLower(strings.TrimSpace(d))] = true
	}
	for _, d := range data.AllowedDomains {
		snap.allowedDomains[strings.ToLower(strings.TrimSpace(d))] = true
	}
	for _, k := range data.ReservedKeys {
		snap.reservedKeys[strings.ToLower(strings.TrimSpace(k))] = true
	}
	for _, t := range data.BlockedTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			snap.blockedTerms = append(snap.blockedTerms, t)
		}
	}
	return snap
}

func emptySnapshot(version int64) *snapshot {
	return buildSnapshot(snapshotData{}, version)
}

// matchesDomain checks the host and every parent domain against the set,
// so "evil.example.com" matches a rule for "example.com"
func (s *snapshot) matchesDomain(set map[string]bool, host string) bool {
	if len(set) == 0 {
		return false
	}
	for h := host; h != ""; {
		if set[h] {
			return true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return false
}

func (s *snapshot) matchesTerm(lowered string) bool {
	for _, term := range s.blockedTerms {
		if strings.Contains(lowered, term) {
			return true
		}
	}
	return false
}
