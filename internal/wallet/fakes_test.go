package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sabi-wallet/sabi_backend/internal/audit"
	"github.com/sabi-wallet/sabi_backend/internal/logging"
	"github.com/sabi-wallet/sabi_backend/internal/node"
)

type fakeNodes struct {
	mu             sync.Mutex
	provisionErr   error
	openErr        error
	inviteCode     string
	walletID       string
	status         node.Status
	provisionCalls int
	openCalls      []int64
	openWallets    []string
	statusCalls    []string
}

func (f *fakeNodes) ProvisionNode(context.Context) (node.NodeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisionCalls++
	if f.provisionErr != nil {
		return node.NodeInfo{}, f.provisionErr
	}
	return node.NodeInfo{NodeReference: "node-ref", InviteCode: f.inviteCode, WalletID: f.walletID}, nil
}

func (f *fakeNodes) OpenChannel(_ context.Context, walletID string, amountSats int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls = append(f.openCalls, amountSats)
	f.openWallets = append(f.openWallets, walletID)
	if err := node.ValidateChannelAmount(amountSats); err != nil {
		return err
	}
	return f.openErr
}

func (f *fakeNodes) GetStatus(_ context.Context, nodeReference string) node.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, nodeReference)
	return f.status
}

func (f *fakeNodes) HealthCheck(context.Context) error { return nil }

func (f *fakeNodes) LSPStatus(context.Context) (node.LSPStatus, error) {
	return node.LSPStatus{ID: "lsp", Online: true}, nil
}

func (f *fakeNodes) provisions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.provisionCalls
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Record(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) kinds(kind string) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// blindStore hides existing devices from the pre-check so Insert is the only
// line of defence, and can fail writes on demand.
type blindStore struct {
	Store
	hideDevices bool
	insertErr   error
	touchErr    error
}

func (s *blindStore) FindByDeviceID(ctx context.Context, deviceID string) (Wallet, error) {
	if s.hideDevices {
		return Wallet{}, ErrNotFound
	}
	return s.Store.FindByDeviceID(ctx, deviceID)
}

func (s *blindStore) Insert(ctx context.Context, w Wallet) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.Store.Insert(ctx, w)
}

func (s *blindStore) TouchLastSeen(ctx context.Context, walletID string, at time.Time) (time.Time, error) {
	if s.touchErr != nil {
		return time.Time{}, s.touchErr
	}
	return s.Store.TouchLastSeen(ctx, walletID, at)
}

var errBoom = errors.New("boom")

type fixture struct {
	store   Store
	nodes   *fakeNodes
	audit   *recordingAudit
	service *Service
	guard   *Guard
}

func newFixture(store Store, cfg ServiceConfig) *fixture {
	if store == nil {
		store = NewMemoryStore()
	}
	nodes := &fakeNodes{}
	rec := &recordingAudit{}
	return &fixture{
		store:   store,
		nodes:   nodes,
		audit:   rec,
		service: NewService(store, nodes, rec, logging.Discard(), cfg),
		guard:   NewGuard(store, nodes, rec, logging.Discard()),
	}
}
