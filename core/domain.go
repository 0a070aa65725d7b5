package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound          = errors.New("core: process not found")
	ErrAlreadyLeased     = errors.New("core: process is already leased")
	ErrInvalidFilter     = errors.New("core: invalid query filter")
	ErrInvalidTransition = errors.New("core: invalid state transition")
)

// StatefulEntity is the shared shape of every lease-managed process record.
// State transitions happen through the workflow-specific transition methods;
// the store only persists and filters on the integer code.
type StatefulEntity struct {
	ID             string
	State          int
	StateCount     int
	StateTimestamp int64
	CreatedAt      int64
	UpdatedAt      int64
	TraceContext   map[string]string
	ErrorDetail    string
}

// Touch advances the state timestamp without changing state. A touched entity
// moves behind untouched peers in the claim ordering.
func (e *StatefulEntity) Touch(now time.Time) {
	if e == nil {
		return
	}
	millis := now.UnixMilli()
	if millis > e.StateTimestamp {
		e.StateTimestamp = millis
	}
}

func (e *StatefulEntity) transitionTo(state int, now time.Time) {
	if e.State == state {
		e.StateCount++
	} else {
		e.StateCount = 1
		e.State = state
	}
	e.StateTimestamp = now.UnixMilli()
}

func (e *StatefulEntity) validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("core: process id is required")
	}
	if e.State == 0 {
		return fmt.Errorf("core: process state must be set")
	}
	return nil
}

// IssuanceProcessState enumerates the issuer-side workflow states.
type IssuanceProcessState int

const (
	IssuanceProcessApproved  IssuanceProcessState = 100
	IssuanceProcessDelivered IssuanceProcessState = 200
	IssuanceProcessErrored   IssuanceProcessState = 300
)

func (s IssuanceProcessState) String() string {
	switch s {
	case IssuanceProcessApproved:
		return "APPROVED"
	case IssuanceProcessDelivered:
		return "DELIVERED"
	case IssuanceProcessErrored:
		return "ERRORED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ParseIssuanceProcessState resolves a state name to its code.
func ParseIssuanceProcessState(name string) (IssuanceProcessState, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "APPROVED":
		return IssuanceProcessApproved, true
	case "DELIVERED":
		return IssuanceProcessDelivered, true
	case "ERRORED":
		return IssuanceProcessErrored, true
	default:
		return 0, false
	}
}

// RequestedCredential identifies one credential a holder asked for.
type RequestedCredential struct {
	CredentialObjectID string `json:"credentialObjectId"`
	Type               string `json:"type"`
	Format             string `json:"format"`
}

// IssuanceProcess tracks credential issuance on the issuer side. It is
// created once a holder's request passed attestation and rule checks; the
// worker then generates and delivers the credentials asynchronously.
type IssuanceProcess struct {
	StatefulEntity

	HolderID              string
	ParticipantContextID  string
	HolderPID             string
	Claims                map[string]any
	CredentialDefinitions []string
	CredentialFormats     map[string]string
}

// NewIssuanceProcess builds a process in the APPROVED state.
func NewIssuanceProcess(id, holderID, participantContextID, holderPID string, now time.Time) (*IssuanceProcess, error) {
	process := &IssuanceProcess{
		StatefulEntity: StatefulEntity{
			ID:             strings.TrimSpace(id),
			State:          int(IssuanceProcessApproved),
			StateCount:     1,
			StateTimestamp: now.UnixMilli(),
			CreatedAt:      now.UnixMilli(),
			UpdatedAt:      now.UnixMilli(),
			TraceContext:   map[string]string{},
		},
		HolderID:             strings.TrimSpace(holderID),
		ParticipantContextID: strings.TrimSpace(participantContextID),
		HolderPID:            strings.TrimSpace(holderPID),
		Claims:               map[string]any{},
		CredentialFormats:    map[string]string{},
	}
	if err := process.StatefulEntity.validate(); err != nil {
		return nil, err
	}
	if process.HolderID == "" {
		return nil, fmt.Errorf("core: holder id is required")
	}
	if process.ParticipantContextID == "" {
		return nil, fmt.Errorf("core: participant context id is required")
	}
	if process.HolderPID == "" {
		return nil, fmt.Errorf("core: holder pid is required")
	}
	return process, nil
}

func (p *IssuanceProcess) StateAsString() string {
	return IssuanceProcessState(p.State).String()
}

// TransitionDelivered is only valid from APPROVED.
func (p *IssuanceProcess) TransitionDelivered(now time.Time) error {
	return p.transition(IssuanceProcessDelivered, now, IssuanceProcessApproved)
}

// TransitionApproved re-affirms APPROVED, counting a retry.
func (p *IssuanceProcess) TransitionApproved(now time.Time) error {
	return p.transition(IssuanceProcessApproved, now, IssuanceProcessApproved)
}

// TransitionErrored is only valid from APPROVED.
func (p *IssuanceProcess) TransitionErrored(detail string, now time.Time) error {
	if err := p.transition(IssuanceProcessErrored, now, IssuanceProcessApproved); err != nil {
		return err
	}
	p.ErrorDetail = strings.TrimSpace(detail)
	return nil
}

func (p *IssuanceProcess) transition(target IssuanceProcessState, now time.Time, from ...IssuanceProcessState) error {
	current := IssuanceProcessState(p.State)
	for _, state := range from {
		if current == state {
			p.transitionTo(int(target), now)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition issuance process from %s to %s", ErrInvalidTransition, current, target)
}

// Copy returns a deep copy so callers can mutate without aliasing stored maps.
func (p *IssuanceProcess) Copy() *IssuanceProcess {
	if p == nil {
		return nil
	}
	copied := *p
	copied.TraceContext = copyStringMap(p.TraceContext)
	copied.Claims = copyAnyMap(p.Claims)
	copied.CredentialDefinitions = append([]string(nil), p.CredentialDefinitions...)
	copied.CredentialFormats = copyStringMap(p.CredentialFormats)
	return &copied
}

// HolderRequestState enumerates the holder-side workflow states.
type HolderRequestState int

const (
	HolderRequestCreated    HolderRequestState = 100
	HolderRequestRequesting HolderRequestState = 200
	HolderRequestRequested  HolderRequestState = 300
	HolderRequestIssued     HolderRequestState = 400
	HolderRequestError      HolderRequestState = 500
)

func (s HolderRequestState) String() string {
	switch s {
	case HolderRequestCreated:
		return "CREATED"
	case HolderRequestRequesting:
		return "REQUESTING"
	case HolderRequestRequested:
		return "REQUESTED"
	case HolderRequestIssued:
		return "ISSUED"
	case HolderRequestError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ParseHolderRequestState resolves a state name to its code.
func ParseHolderRequestState(name string) (HolderRequestState, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CREATED":
		return HolderRequestCreated, true
	case "REQUESTING":
		return HolderRequestRequesting, true
	case "REQUESTED":
		return HolderRequestRequested, true
	case "ISSUED":
		return HolderRequestIssued, true
	case "ERROR":
		return HolderRequestError, true
	default:
		return 0, false
	}
}

// HolderCredentialRequest tracks an outbound credential request on the holder
// side, from creation until the issuer delivers the credential.
type HolderCredentialRequest struct {
	StatefulEntity

	ParticipantContextID string
	IssuerDID            string
	RequestedCredentials []RequestedCredential
	// IssuerPID is the process id the issuer assigned in its ack. It is
	// distinct from the holder-assigned ID and required for status polls.
	IssuerPID string
}

// NewHolderCredentialRequest builds a request in the CREATED state.
func NewHolderCredentialRequest(id, participantContextID, issuerDID string, requested []RequestedCredential, now time.Time) (*HolderCredentialRequest, error) {
	request := &HolderCredentialRequest{
		StatefulEntity: StatefulEntity{
			ID:             strings.TrimSpace(id),
			State:          int(HolderRequestCreated),
			StateCount:     1,
			StateTimestamp: now.UnixMilli(),
			CreatedAt:      now.UnixMilli(),
			UpdatedAt:      now.UnixMilli(),
			TraceContext:   map[string]string{},
		},
		ParticipantContextID: strings.TrimSpace(participantContextID),
		IssuerDID:            strings.TrimSpace(issuerDID),
		RequestedCredentials: append([]RequestedCredential(nil), requested...),
	}
	if err := request.StatefulEntity.validate(); err != nil {
		return nil, err
	}
	if request.ParticipantContextID == "" {
		return nil, fmt.Errorf("core: participant context id is required")
	}
	if request.IssuerDID == "" {
		return nil, fmt.Errorf("core: issuer did is required")
	}
	if len(request.RequestedCredentials) == 0 {
		return nil, fmt.Errorf("core: at least one requested credential is required")
	}
	return request, nil
}

func (r *HolderCredentialRequest) StateAsString() string {
	return HolderRequestState(r.State).String()
}

// HolderPID is the holder-assigned id of this request, identical to ID.
func (r *HolderCredentialRequest) HolderPID() string {
	return r.ID
}

func (r *HolderCredentialRequest) TransitionRequesting(now time.Time) error {
	return r.transition(HolderRequestRequesting, now, HolderRequestCreated, HolderRequestRequesting)
}

func (r *HolderCredentialRequest) TransitionRequested(issuerPID string, now time.Time) error {
	if err := r.transition(HolderRequestRequested, now, HolderRequestRequesting, HolderRequestRequested); err != nil {
		return err
	}
	r.IssuerPID = strings.TrimSpace(issuerPID)
	return nil
}

func (r *HolderCredentialRequest) TransitionIssued(now time.Time) error {
	return r.transition(HolderRequestIssued, now, HolderRequestRequested, HolderRequestIssued)
}

// TransitionError is reachable from every non-terminal state.
func (r *HolderCredentialRequest) TransitionError(detail string, now time.Time) error {
	if err := r.transition(HolderRequestError, now,
		HolderRequestCreated, HolderRequestRequesting, HolderRequestRequested, HolderRequestError); err != nil {
		return err
	}
	r.ErrorDetail = strings.TrimSpace(detail)
	return nil
}

func (r *HolderCredentialRequest) transition(target HolderRequestState, now time.Time, from ...HolderRequestState) error {
	current := HolderRequestState(r.State)
	for _, state := range from {
		if current == state {
			r.transitionTo(int(target), now)
			return nil
		}
	}
	return fmt.Errorf("%w: cannot transition holder request from %s to %s", ErrInvalidTransition, current, target)
}

// Copy returns a deep copy so callers can mutate without aliasing stored slices.
func (r *HolderCredentialRequest) Copy() *HolderCredentialRequest {
	if r == nil {
		return nil
	}
	copied := *r
	copied.TraceContext = copyStringMap(r.TraceContext)
	copied.RequestedCredentials = append([]RequestedCredential(nil), r.RequestedCredentials...)
	return &copied
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
