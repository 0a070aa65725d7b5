package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:   map[string]int64{},
		histograms: map[string]int{},
	}
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += value
}

func (r *recordingMetrics) ObserveHistogram(_ context.Context, name string, _ float64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histograms[name]++
}

func (r *recordingMetrics) Counter(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[name]
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// memIssuanceStore is a minimal in-memory issuance store. Leases are tracked
// as a claimed set: claims exclude entities until the next Save.
type memIssuanceStore struct {
	mu      sync.Mutex
	byID    map[string]*IssuanceProcess
	claimed map[string]bool
	saveErr error
}

func newMemIssuanceStore() *memIssuanceStore {
	return &memIssuanceStore{
		byID:    map[string]*IssuanceProcess{},
		claimed: map[string]bool{},
	}
}

func (s *memIssuanceStore) Save(_ context.Context, process *IssuanceProcess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.byID[process.ID] = process.Copy()
	delete(s.claimed, process.ID)
	return nil
}

func (s *memIssuanceStore) FindByID(_ context.Context, id string) (*IssuanceProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	process, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return process.Copy(), nil
}

func (s *memIssuanceStore) FindByIDAndLease(_ context.Context, id string) (*IssuanceProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	process, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.claimed[id] {
		return nil, ErrAlreadyLeased
	}
	s.claimed[id] = true
	return process.Copy(), nil
}

func (s *memIssuanceStore) NextNotLeased(_ context.Context, max int, criteria ...Criterion) ([]*IssuanceProcess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make([]*IssuanceProcess, 0, len(s.byID))
	for id, process := range s.byID {
		if s.claimed[id] {
			continue
		}
		if !matchesStateCriteria(process.State, criteria) {
			continue
		}
		candidates = append(candidates, process)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StateTimestamp < candidates[j].StateTimestamp
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]*IssuanceProcess, 0, len(candidates))
	for _, process := range candidates {
		s.claimed[process.ID] = true
		out = append(out, process.Copy())
	}
	return out, nil
}

func (s *memIssuanceStore) Query(_ context.Context, spec QuerySpec) ([]*IssuanceProcess, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*IssuanceProcess{}
	for _, process := range s.byID {
		if matchesStateCriteria(process.State, spec.Criteria) {
			out = append(out, process.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memRequestStore struct {
	mu      sync.Mutex
	byID    map[string]*HolderCredentialRequest
	claimed map[string]bool
	saveErr error
}

func newMemRequestStore() *memRequestStore {
	return &memRequestStore{
		byID:    map[string]*HolderCredentialRequest{},
		claimed: map[string]bool{},
	}
}

func (s *memRequestStore) Save(_ context.Context, request *HolderCredentialRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.byID[request.ID] = request.Copy()
	delete(s.claimed, request.ID)
	return nil
}

func (s *memRequestStore) FindByID(_ context.Context, id string) (*HolderCredentialRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return request.Copy(), nil
}

func (s *memRequestStore) FindByIDAndLease(_ context.Context, id string) (*HolderCredentialRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.claimed[id] {
		return nil, ErrAlreadyLeased
	}
	s.claimed[id] = true
	return request.Copy(), nil
}

func (s *memRequestStore) NextNotLeased(_ context.Context, max int, criteria ...Criterion) ([]*HolderCredentialRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make([]*HolderCredentialRequest, 0, len(s.byID))
	for id, request := range s.byID {
		if s.claimed[id] {
			continue
		}
		if !matchesStateCriteria(request.State, criteria) {
			continue
		}
		candidates = append(candidates, request)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StateTimestamp < candidates[j].StateTimestamp
	})
	if len(candidates) > max {
		candidates = candidates[:max]
	}
	out := make([]*HolderCredentialRequest, 0, len(candidates))
	for _, request := range candidates {
		s.claimed[request.ID] = true
		out = append(out, request.Copy())
	}
	return out, nil
}

func (s *memRequestStore) Query(_ context.Context, spec QuerySpec) ([]*HolderCredentialRequest, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*HolderCredentialRequest{}
	for _, request := range s.byID {
		if matchesStateCriteria(request.State, spec.Criteria) {
			out = append(out, request.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchesStateCriteria(state int, criteria []Criterion) bool {
	for _, criterion := range criteria {
		if criterion.Left != "state" {
			continue
		}
		switch criterion.Operator {
		case OpEqual:
			if value, ok := criterion.Right.(int); ok && state != value {
				return false
			}
		case OpIn:
			if values, ok := criterion.Right.([]int); ok {
				found := false
				for _, value := range values {
					if state == value {
						found = true
						break
					}
				}
				if !found {
					return false
				}
			}
		}
	}
	return true
}

type stubGenerator struct {
	credentials []CredentialContainer
	err         error
	calls       int
}

func (g *stubGenerator) Generate(context.Context, *IssuanceProcess) ([]CredentialContainer, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.credentials, nil
}

type stubStatusList struct {
	err   error
	calls int
}

func (s *stubStatusList) Register(_ context.Context, _ string, credentials []CredentialContainer) ([]CredentialContainer, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return credentials, nil
}

type stubDelivery struct {
	err   error
	calls int
}

func (d *stubDelivery) Deliver(context.Context, *IssuanceProcess, []CredentialContainer) error {
	d.calls++
	return d.err
}

type stubIssuedStore struct {
	err    error
	stored int
}

func (s *stubIssuedStore) StoreIssued(_ context.Context, _ *IssuanceProcess, credentials []CredentialContainer) error {
	if s.err != nil {
		return s.err
	}
	s.stored += len(credentials)
	return nil
}

type stubEndpointResolver struct {
	endpoint string
	err      error
}

func (r stubEndpointResolver) ResolveRequestEndpoint(context.Context, string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.endpoint, nil
}

type stubTokenService struct {
	token string
	err   error
}

func (s stubTokenService) SelfIssuedToken(context.Context, string, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

type stubRequestClient struct {
	issuerPID string
	sendErr   error
	status    CredentialRequestStatus
	statusErr error

	sendCalls   int
	statusCalls int
}

func (c *stubRequestClient) SendRequest(context.Context, string, string, *HolderCredentialRequest) (string, error) {
	c.sendCalls++
	if c.sendErr != nil {
		return "", c.sendErr
	}
	return c.issuerPID, nil
}

func (c *stubRequestClient) GetStatus(context.Context, string, string, string) (CredentialRequestStatus, error) {
	c.statusCalls++
	if c.statusErr != nil {
		return "", c.statusErr
	}
	return c.status, nil
}

func fixedClock(at time.Time) Clock {
	return func() time.Time { return at }
}

func mustIssuanceProcess(id string, at time.Time) *IssuanceProcess {
	process, err := NewIssuanceProcess(id, "holder-1", "participant-1", "holder-pid-1", at)
	if err != nil {
		panic(fmt.Sprintf("build issuance process: %v", err))
	}
	process.CredentialDefinitions = []string{"membership-definition"}
	return process
}

func mustHolderRequest(id string, at time.Time) *HolderCredentialRequest {
	request, err := NewHolderCredentialRequest(id, "participant-1", "did:web:issuer.example", []RequestedCredential{
		{CredentialObjectID: "membership-object", Type: "MembershipCredential", Format: "VC1_0_JWT"},
	}, at)
	if err != nil {
		panic(fmt.Sprintf("build holder request: %v", err))
	}
	return request
}
