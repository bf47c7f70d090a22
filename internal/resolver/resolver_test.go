package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"linkedge/internal/cache"
	"linkedge/internal/domain"
	"linkedge/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==================== FAKES ====================

// fakeCache is an in-memory cache tier. It records tombstones separately
// so tests can assert which kind of entry a resolution produced.
type fakeCache struct {
	mu         sync.Mutex
	links      map[string]*domain.Link
	linkDead   map[string]bool
	domains    map[string]*domain.Domain
	domainDead map[string]bool
	getErr     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		links:      make(map[string]*domain.Link),
		linkDead:   make(map[string]bool),
		domains:    make(map[string]*domain.Domain),
		domainDead: make(map[string]bool),
	}
}

func (f *fakeCache) GetLink(_ context.Context, linkDomain, key string) (*domain.Link, cache.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, cache.Miss, f.getErr
	}
	k := linkDomain + "/" + key
	if f.linkDead[k] {
		return nil, cache.Tombstone, nil
	}
	if link, ok := f.links[k]; ok {
		return link, cache.Hit, nil
	}
	return nil, cache.Miss, nil
}

func (f *fakeCache) SetLink(_ context.Context, link *domain.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[link.Domain+"/"+link.Key] = link
	return nil
}

func (f *fakeCache) SetLinkTombstone(_ context.Context, linkDomain, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkDead[linkDomain+"/"+key] = true
	return nil
}

func (f *fakeCache) InvalidateLink(_ context.Context, linkDomain, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, linkDomain+"/"+key)
	delete(f.linkDead, linkDomain+"/"+key)
	return nil
}

func (f *fakeCache) GetDomain(_ context.Context, slug string) (*domain.Domain, cache.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.domainDead[slug] {
		return nil, cache.Tombstone, nil
	}
	if d, ok := f.domains[slug]; ok {
		return d, cache.Hit, nil
	}
	return nil, cache.Miss, nil
}

func (f *fakeCache) SetDomain(_ context.Context, d *domain.Domain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[d.Slug] = d
	return nil
}

func (f *fakeCache) SetDomainTombstone(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domainDead[slug] = true
	return nil
}

func (f *fakeCache) InvalidateDomain(_ context.Context, slug string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.domains, slug)
	delete(f.domainDead, slug)
	return nil
}

func (f *fakeCache) hasLink(linkDomain, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.links[linkDomain+"/"+key]
	return ok
}

func (f *fakeCache) hasLinkTombstone(linkDomain, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkDead[linkDomain+"/"+key]
}

func (f *fakeCache) hasDomainTombstone(slug string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.domainDead[slug]
}

type mockLinkStore struct {
	mock.Mock
}

func (m *mockLinkStore) FindByDomainAndKey(ctx context.Context, linkDomain, key string) (*domain.Link, error) {
	args := m.Called(ctx, linkDomain, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Link), args.Error(1)
}

type mockDomainStore struct {
	mock.Mock
}

func (m *mockDomainStore) Find(ctx context.Context, slug string) (*domain.Domain, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Domain), args.Error(1)
}

func newTestResolver(c Cache, links *mockLinkStore, domains *mockDomainStore) *Resolver {
	return New(c, links, domains, 300*time.Millisecond, logger.New("error"))
}

// ==================== LINK RESOLUTION ====================

func TestResolveLink_MissThenHit(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	domains := new(mockDomainStore)
	r := newTestResolver(c, links, domains)

	stored := &domain.Link{Domain: "lnk.sh", Key: "github", URL: "https://github.com"}
	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "github").Return(stored, nil).Once()

	link, err := r.ResolveLink(context.Background(), "lnk.sh", "github")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com", link.URL)

	// Cache population runs off the request path
	require.Eventually(t, func() bool {
		return c.hasLink("lnk.sh", "github")
	}, time.Second, 10*time.Millisecond)

	// The second resolve is served from cache; the mock would fail the
	// test on a second store call
	link, err = r.ResolveLink(context.Background(), "lnk.sh", "github")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com", link.URL)

	links.AssertExpectations(t)
}

func TestResolveLink_NotFoundTombstones(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "nope").Return(nil, domain.ErrNotFound).Once()

	_, err := r.ResolveLink(context.Background(), "lnk.sh", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.Eventually(t, func() bool {
		return c.hasLinkTombstone("lnk.sh", "nope")
	}, time.Second, 10*time.Millisecond)

	// The tombstone short-circuits: no store call this time
	_, err = r.ResolveLink(context.Background(), "lnk.sh", "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	links.AssertExpectations(t)
}

func TestResolveLink_TransientErrorNeverTombstoned(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "github").
		Return(nil, errors.New("connection refused")).Twice()

	_, err := r.ResolveLink(context.Background(), "lnk.sh", "github")
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	// Nothing may be cached after a transient failure; the next resolve
	// must go back to the store
	assert.False(t, c.hasLinkTombstone("lnk.sh", "github"))
	assert.False(t, c.hasLink("lnk.sh", "github"))

	_, err = r.ResolveLink(context.Background(), "lnk.sh", "github")
	assert.ErrorIs(t, err, domain.ErrTransient)

	links.AssertExpectations(t)
}

func TestResolveLink_CacheErrorDegradesToStore(t *testing.T) {
	c := newFakeCache()
	c.getErr = errors.New("redis down")
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	stored := &domain.Link{Domain: "lnk.sh", Key: "github", URL: "https://github.com"}
	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "github").Return(stored, nil).Once()

	link, err := r.ResolveLink(context.Background(), "lnk.sh", "github")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com", link.URL)
}

func TestResolveLink_ConcurrentMissesCollapse(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	stored := &domain.Link{Domain: "lnk.sh", Key: "hot", URL: "https://example.com"}
	// A slow store makes the flight window wide enough to observe
	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "hot").
		Run(func(mock.Arguments) { time.Sleep(50 * time.Millisecond) }).
		Return(stored, nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := r.ResolveLink(context.Background(), "lnk.sh", "hot")
			assert.NoError(t, err)
			assert.Equal(t, "https://example.com", link.URL)
		}()
	}
	wg.Wait()

	links.AssertExpectations(t)
	links.AssertNumberOfCalls(t, "FindByDomainAndKey", 1)
}

func TestResolveLink_LookupOutlivesCallerCancel(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	stored := &domain.Link{Domain: "lnk.sh", Key: "github", URL: "https://github.com"}
	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "github").
		Run(func(args mock.Arguments) {
			// The lookup context is detached from the caller; it carries
			// its own deadline instead of the already-cancelled one
			ctx := args.Get(0).(context.Context)
			assert.NoError(t, ctx.Err())
		}).
		Return(stored, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	link, err := r.ResolveLink(ctx, "lnk.sh", "github")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com", link.URL)
}

// ==================== DOMAIN RESOLUTION ====================

func TestResolveDomain_MissThenHit(t *testing.T) {
	c := newFakeCache()
	domains := new(mockDomainStore)
	r := newTestResolver(c, new(mockLinkStore), domains)

	root := "https://acme.com"
	stored := &domain.Domain{Slug: "acme.link", RootURL: &root, Verified: true}
	domains.On("Find", mock.Anything, "acme.link").Return(stored, nil).Once()

	d, err := r.ResolveDomain(context.Background(), "acme.link")
	require.NoError(t, err)
	assert.Equal(t, "acme.link", d.Slug)

	require.Eventually(t, func() bool {
		d, outcome, _ := c.GetDomain(context.Background(), "acme.link")
		return outcome == cache.Hit && d != nil
	}, time.Second, 10*time.Millisecond)

	_, err = r.ResolveDomain(context.Background(), "acme.link")
	require.NoError(t, err)

	domains.AssertExpectations(t)
}

func TestResolveDomain_NotFoundTombstones(t *testing.T) {
	c := newFakeCache()
	domains := new(mockDomainStore)
	r := newTestResolver(c, new(mockLinkStore), domains)

	domains.On("Find", mock.Anything, "ghost.link").Return(nil, domain.ErrNotFound).Once()

	_, err := r.ResolveDomain(context.Background(), "ghost.link")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.Eventually(t, func() bool {
		return c.hasDomainTombstone("ghost.link")
	}, time.Second, 10*time.Millisecond)

	_, err = r.ResolveDomain(context.Background(), "ghost.link")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	domains.AssertExpectations(t)
}

// ==================== INVALIDATION ====================

func TestInvalidateLink(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	stored := &domain.Link{Domain: "lnk.sh", Key: "github", URL: "https://github.com/v1"}
	require.NoError(t, c.SetLink(context.Background(), stored))

	require.NoError(t, r.InvalidateLink(context.Background(), "lnk.sh", "github"))

	// The next resolve goes back to the store and sees the new row
	updated := &domain.Link{Domain: "lnk.sh", Key: "github", URL: "https://github.com/v2"}
	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "github").Return(updated, nil).Once()

	link, err := r.ResolveLink(context.Background(), "lnk.sh", "github")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/v2", link.URL)
}

func TestInvalidateLink_ClearsTombstone(t *testing.T) {
	c := newFakeCache()
	links := new(mockLinkStore)
	r := newTestResolver(c, links, new(mockDomainStore))

	require.NoError(t, c.SetLinkTombstone(context.Background(), "lnk.sh", "fresh"))

	// A newly created key invalidates its own tombstone so it becomes
	// reachable immediately, not after the negative TTL
	require.NoError(t, r.InvalidateLink(context.Background(), "lnk.sh", "fresh"))

	created := &domain.Link{Domain: "lnk.sh", Key: "fresh", URL: "https://example.com"}
	links.On("FindByDomainAndKey", mock.Anything, "lnk.sh", "fresh").Return(created, nil).Once()

	link, err := r.ResolveLink(context.Background(), "lnk.sh", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", link.URL)
}
