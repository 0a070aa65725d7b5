package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tavenor/credstate/core"
	credmigrations "github.com/tavenor/credstate/migrations"
	sqlstore "github.com/tavenor/credstate/store/sql"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "credstate-tests"
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(at time.Time) *manualClock {
	return &manualClock{now: at}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:credstate-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = credmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != credmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, credmigrations.WithValidationTargets(credmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T, client *persistence.Client, owner string, now func() time.Time) *sqlstore.RepositoryFactory {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.FactoryConfig{
		Owner:         owner,
		LeaseDuration: 30 * time.Second,
		Now:           now,
	})
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func seedIssuanceProcess(t *testing.T, store core.IssuanceProcessStore, id string, at time.Time) *core.IssuanceProcess {
	t.Helper()
	process, err := core.NewIssuanceProcess(id, "holder-1", "participant-1", "holder-pid-1", at)
	if err != nil {
		t.Fatalf("new issuance process: %v", err)
	}
	process.CredentialDefinitions = []string{"membership-definition"}
	if err := store.Save(context.Background(), process); err != nil {
		t.Fatalf("save %s: %v", id, err)
	}
	return process
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"credential_issuance_processes",
		"holder_credential_requests",
		"credential_process_leases",
	} {
		var name string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &name); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if name != table {
			t.Fatalf("expected %s table, got %q", table, name)
		}
	}
}

func TestIssuanceProcessStore_SaveAndFindRoundtrip(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)
	store := factory.IssuanceProcessStore()

	process, err := core.NewIssuanceProcess("proc_1", "holder-1", "participant-1", "holder-pid-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("new issuance process: %v", err)
	}
	process.Claims = map[string]any{"person": map[string]any{"name": "alice"}}
	process.CredentialDefinitions = []string{"membership-definition", "employee-definition"}
	process.CredentialFormats = map[string]string{"MembershipCredential": "VC1_0_JWT"}
	process.TraceContext = map[string]string{"traceparent": "00-abc-def-01"}

	if err := store.Save(ctx, process); err != nil {
		t.Fatalf("save: %v", err)
	}

	found, err := store.FindByID(ctx, "proc_1")
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if found.State != int(core.IssuanceProcessApproved) || found.StateCount != 1 {
		t.Fatalf("unexpected state after roundtrip: %d/%d", found.State, found.StateCount)
	}
	person, ok := found.Claims["person"].(map[string]any)
	if !ok || person["name"] != "alice" {
		t.Fatalf("expected nested claims to survive the roundtrip, got %v", found.Claims)
	}
	if len(found.CredentialDefinitions) != 2 {
		t.Fatalf("expected definitions roundtrip, got %v", found.CredentialDefinitions)
	}
	if found.CredentialFormats["MembershipCredential"] != "VC1_0_JWT" {
		t.Fatalf("expected formats roundtrip, got %v", found.CredentialFormats)
	}
	if found.TraceContext["traceparent"] != "00-abc-def-01" {
		t.Fatalf("expected trace context roundtrip, got %v", found.TraceContext)
	}

	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIssuanceProcessStore_NextNotLeasedOrdersAndLocks(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)
	store := factory.IssuanceProcessStore()

	now := time.Now().UTC()
	seedIssuanceProcess(t, store, "proc_new", now)
	seedIssuanceProcess(t, store, "proc_old", now.Add(-time.Hour))

	claimed, err := store.NextNotLeased(ctx, 1, core.NewCriterion("state", core.OpEqual, int(core.IssuanceProcessApproved)))
	if err != nil {
		t.Fatalf("next not leased: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "proc_old" {
		t.Fatalf("expected the oldest state timestamp first, got %v", claimed)
	}

	second, err := store.NextNotLeased(ctx, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 1 || second[0].ID != "proc_new" {
		t.Fatalf("expected only the unclaimed entity, got %d", len(second))
	}

	third, err := store.NextNotLeased(ctx, 10)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("expected no claimable entities, got %d", len(third))
	}
}

func TestLeases_SecondRuntimeIsExcluded(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	runtimeA := newFactory(t, client, "runtime-a", nil)
	runtimeB := newFactory(t, client, "runtime-b", nil)

	seedIssuanceProcess(t, runtimeA.IssuanceProcessStore(), "proc_1", time.Now().UTC())

	leased, err := runtimeA.IssuanceProcessStore().FindByIDAndLease(ctx, "proc_1")
	if err != nil {
		t.Fatalf("lease from runtime-a: %v", err)
	}

	if _, err := runtimeB.IssuanceProcessStore().FindByIDAndLease(ctx, "proc_1"); !errors.Is(err, core.ErrAlreadyLeased) {
		t.Fatalf("expected ErrAlreadyLeased for runtime-b, got %v", err)
	}
	if claimed, _ := runtimeB.IssuanceProcessStore().NextNotLeased(ctx, 10); len(claimed) != 0 {
		t.Fatalf("expected runtime-b to see no claimable entities")
	}
	if err := runtimeB.IssuanceProcessStore().Save(ctx, leased); !errors.Is(err, core.ErrAlreadyLeased) {
		t.Fatalf("expected runtime-b save to fail while leased, got %v", err)
	}

	// Saving from the lease holder releases the lock for everyone.
	if err := runtimeA.IssuanceProcessStore().Save(ctx, leased); err != nil {
		t.Fatalf("save from runtime-a: %v", err)
	}
	if _, err := runtimeB.IssuanceProcessStore().FindByIDAndLease(ctx, "proc_1"); err != nil {
		t.Fatalf("expected runtime-b to lease after release, got %v", err)
	}
}

func TestLeases_ConcurrentClaimsAreDisjoint(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	runtimeA := newFactory(t, client, "runtime-a", nil)
	runtimeB := newFactory(t, client, "runtime-b", nil)

	now := time.Now().UTC()
	const seeded = 8
	for i := 0; i < seeded; i++ {
		seedIssuanceProcess(t, runtimeA.IssuanceProcessStore(), fmt.Sprintf("proc_%d", i), now.Add(time.Duration(-i)*time.Minute))
	}

	claim := func(store core.IssuanceProcessStore, out chan<- []string, done *sync.WaitGroup) {
		defer done.Done()
		var ids []string
		for {
			claimed, err := store.NextNotLeased(ctx, 2,
				core.NewCriterion("state", core.OpEqual, int(core.IssuanceProcessApproved)))
			if err != nil {
				t.Errorf("next not leased: %v", err)
				break
			}
			if len(claimed) == 0 {
				break
			}
			for _, process := range claimed {
				ids = append(ids, process.ID)
			}
		}
		out <- ids
	}

	results := make(chan []string, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go claim(runtimeA.IssuanceProcessStore(), results, &wg)
	go claim(runtimeB.IssuanceProcessStore(), results, &wg)
	wg.Wait()
	close(results)

	seen := map[string]int{}
	total := 0
	for ids := range results {
		for _, id := range ids {
			seen[id]++
			total++
		}
	}
	if total != seeded {
		t.Fatalf("expected %d claims across both runtimes, got %d", seeded, total)
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("expected %s to be claimed exactly once, got %d", id, count)
		}
	}
}

func TestLeases_ExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	clock := newManualClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	runtimeA := newFactory(t, client, "runtime-a", clock.Now)
	runtimeB := newFactory(t, client, "runtime-b", clock.Now)

	seedIssuanceProcess(t, runtimeA.IssuanceProcessStore(), "proc_1", clock.Now())

	if _, err := runtimeA.IssuanceProcessStore().FindByIDAndLease(ctx, "proc_1"); err != nil {
		t.Fatalf("lease from runtime-a: %v", err)
	}
	if _, err := runtimeB.IssuanceProcessStore().FindByIDAndLease(ctx, "proc_1"); !errors.Is(err, core.ErrAlreadyLeased) {
		t.Fatalf("expected active lease to block runtime-b, got %v", err)
	}

	clock.Advance(31 * time.Second)

	claimed, err := runtimeB.IssuanceProcessStore().NextNotLeased(ctx, 1)
	if err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != "proc_1" {
		t.Fatalf("expected runtime-b to reclaim the expired lease, got %v", claimed)
	}
}

func TestIssuanceProcessStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)
	store := factory.IssuanceProcessStore()

	now := time.Now().UTC()
	approved := seedIssuanceProcess(t, store, "proc_a", now.Add(-2*time.Hour))
	approved.Claims = map[string]any{"person": map[string]any{"name": "alice"}}
	if err := store.Save(ctx, approved); err != nil {
		t.Fatalf("save claims: %v", err)
	}

	delivered := seedIssuanceProcess(t, store, "proc_b", now.Add(-time.Hour))
	if err := delivered.TransitionDelivered(now); err != nil {
		t.Fatalf("transition delivered: %v", err)
	}
	if err := store.Save(ctx, delivered); err != nil {
		t.Fatalf("save delivered: %v", err)
	}

	byName, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("state", core.OpEqual, "DELIVERED"))
	if err != nil {
		t.Fatalf("query by state name: %v", err)
	}
	if len(byName) != 1 || byName[0].ID != "proc_b" {
		t.Fatalf("expected proc_b by state name, got %v", byName)
	}

	byNumeric, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("state", core.OpEqual, "100"))
	if err != nil {
		t.Fatalf("query by numeric state: %v", err)
	}
	if len(byNumeric) != 1 || byNumeric[0].ID != "proc_a" {
		t.Fatalf("expected proc_a by numeric state, got %v", byNumeric)
	}

	byClaim, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("claims.person.name", core.OpEqual, "alice"))
	if err != nil {
		t.Fatalf("query by claim path: %v", err)
	}
	if len(byClaim) != 1 || byClaim[0].ID != "proc_a" {
		t.Fatalf("expected proc_a by claim path, got %v", byClaim)
	}

	byDefinition, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("credentialDefinitions", core.OpContains, "membership-definition"))
	if err != nil {
		t.Fatalf("query by contains: %v", err)
	}
	if len(byDefinition) != 2 {
		t.Fatalf("expected both processes by contains, got %d", len(byDefinition))
	}

	byLike, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("holderId", core.OpLike, "holder%"))
	if err != nil {
		t.Fatalf("query by like: %v", err)
	}
	if len(byLike) != 2 {
		t.Fatalf("expected both processes by like, got %d", len(byLike))
	}

	byIn, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("state", core.OpIn, []string{"APPROVED", "ERRORED"}))
	if err != nil {
		t.Fatalf("query by in: %v", err)
	}
	if len(byIn) != 1 || byIn[0].ID != "proc_a" {
		t.Fatalf("expected proc_a by in filter, got %v", byIn)
	}
}

func TestIssuanceProcessStore_QuerySortAndPaging(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)
	store := factory.IssuanceProcessStore()

	now := time.Now().UTC()
	seedIssuanceProcess(t, store, "proc_a", now.Add(-3*time.Hour))
	seedIssuanceProcess(t, store, "proc_b", now.Add(-2*time.Hour))
	seedIssuanceProcess(t, store, "proc_c", now.Add(-time.Hour))

	page, err := store.Query(ctx, core.NewQuerySpec().
		WithSort("stateTimestamp", core.SortDescending).
		WithPage(1, 1))
	if err != nil {
		t.Fatalf("query page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "proc_b" {
		t.Fatalf("expected the middle entity on the second page, got %v", page)
	}

	all, err := store.Query(ctx, core.NewQuerySpec())
	if err != nil {
		t.Fatalf("query default: %v", err)
	}
	if len(all) != 3 || all[0].ID != "proc_a" {
		t.Fatalf("expected default id ordering, got %v", all)
	}
}

func TestIssuanceProcessStore_QueryRejectsInvalidFilters(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)
	store := factory.IssuanceProcessStore()

	if _, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("state", core.Operator(">"), 100)); !errors.Is(err, core.ErrInvalidFilter) {
		t.Fatalf("expected invalid operator error, got %v", err)
	}
	if _, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("no_such_field", core.OpEqual, "x")); !errors.Is(err, core.ErrInvalidFilter) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
	if _, err := store.Query(ctx, core.NewQuerySpec().WithCriterion("state", core.OpEqual, "NOT_A_STATE")); !errors.Is(err, core.ErrInvalidFilter) {
		t.Fatalf("expected unknown state error, got %v", err)
	}
	if _, err := store.Query(ctx, core.NewQuerySpec().WithSort("claims.person.name", core.SortAscending)); !errors.Is(err, core.ErrInvalidFilter) {
		t.Fatalf("expected sort whitelist error, got %v", err)
	}
}

func TestHolderCredentialRequestStore_RoundtripAndStateQuery(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)
	store := factory.HolderCredentialRequestStore()

	now := time.Now().UTC()
	request, err := core.NewHolderCredentialRequest("req_1", "participant-1", "did:web:issuer.example", []core.RequestedCredential{
		{CredentialObjectID: "membership-object", Type: "MembershipCredential", Format: "VC1_0_JWT"},
		{CredentialObjectID: "employee-object", Type: "EmployeeCredential", Format: "VC1_0_JWT"},
	}, now)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := request.TransitionRequesting(now); err != nil {
		t.Fatalf("transition requesting: %v", err)
	}
	if err := request.TransitionRequested("issuer-pid-9", now); err != nil {
		t.Fatalf("transition requested: %v", err)
	}
	if err := store.Save(ctx, request); err != nil {
		t.Fatalf("save request: %v", err)
	}

	found, err := store.FindByID(ctx, "req_1")
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if len(found.RequestedCredentials) != 2 {
		t.Fatalf("expected requested credentials roundtrip, got %v", found.RequestedCredentials)
	}
	if found.RequestedCredentials[0].CredentialObjectID != "membership-object" {
		t.Fatalf("expected credential object id roundtrip, got %q", found.RequestedCredentials[0].CredentialObjectID)
	}
	if found.IssuerPID != "issuer-pid-9" {
		t.Fatalf("expected issuer pid roundtrip, got %q", found.IssuerPID)
	}

	byState, err := store.Query(ctx, core.NewQuerySpec().
		WithCriterion("state", core.OpEqual, "REQUESTED").
		WithCriterion("issuerDid", core.OpEqual, "did:web:issuer.example"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(byState) != 1 || byState[0].ID != "req_1" {
		t.Fatalf("expected req_1 by state name, got %v", byState)
	}
}

func TestRepositoryFactory_SharesLeaseIdentityAcrossStores(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client, "runtime-a", nil)

	if factory.IssuanceProcessStore() == nil || factory.HolderCredentialRequestStore() == nil {
		t.Fatalf("expected both stores from the factory")
	}

	// Entities of different kinds never contend even with equal ids.
	seedIssuanceProcess(t, factory.IssuanceProcessStore(), "shared_id", time.Now().UTC())
	request, err := core.NewHolderCredentialRequest("shared_id", "participant-1", "did:web:issuer.example", []core.RequestedCredential{
		{CredentialObjectID: "membership-object"},
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if err := factory.HolderCredentialRequestStore().Save(ctx, request); err != nil {
		t.Fatalf("save request: %v", err)
	}

	if _, err := factory.IssuanceProcessStore().FindByIDAndLease(ctx, "shared_id"); err != nil {
		t.Fatalf("lease issuance process: %v", err)
	}
	if _, err := factory.HolderCredentialRequestStore().FindByIDAndLease(ctx, "shared_id"); err != nil {
		t.Fatalf("expected holder request lease to be independent, got %v", err)
	}
}
