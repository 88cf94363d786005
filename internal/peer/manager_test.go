package peer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triwhist/internal/engine"
)

type fakeTransport struct {
	mu          sync.Mutex
	offers      int
	answers     int
	accepted    int
	closed      int
	offerErr    error
	candidates  []string
	localCands  []string
	sendResults bool
}

func (f *fakeTransport) CreateOffer(ctx context.Context, peer engine.Seat) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return "offer", f.offerErr
}

func (f *fakeTransport) CreateAnswer(ctx context.Context, peer engine.Seat, offer string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return "answer", nil
}

func (f *fakeTransport) AcceptAnswer(ctx context.Context, peer engine.Seat, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepted++
	return nil
}

func (f *fakeTransport) AddCandidate(ctx context.Context, peer engine.Seat, candidate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeTransport) LocalCandidates(ctx context.Context, peer engine.Seat) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.localCands))
	copy(out, f.localCands)
	return out, nil
}

func (f *fakeTransport) Send(peer engine.Seat, msg []byte) bool { return f.sendResults }

func (f *fakeTransport) Close(peer engine.Seat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeTransport) offerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers
}

func (f *fakeTransport) answerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers
}

type fakeSignaler struct {
	mu         sync.Mutex
	offers     int
	answers    int
	candidates []string
	cleared    int
}

func (f *fakeSignaler) SendOffer(ctx context.Context, to engine.Seat, offer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return nil
}

func (f *fakeSignaler) SendAnswer(ctx context.Context, to engine.Seat, answer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers++
	return nil
}

func (f *fakeSignaler) SendCandidate(ctx context.Context, to engine.Seat, candidate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeSignaler) ClearPair(ctx context.Context, peer engine.Seat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeSignaler) sentOffers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offers
}

func (f *fakeSignaler) sentCandidates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candidates)
}

// fakeClock captures scheduled callbacks so tests fire timeouts
// deliberately.
type fakeClock struct {
	mu  sync.Mutex
	fns []func()
}

func (c *fakeClock) after(d time.Duration, fn func()) *time.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
	// The manager only needs a Stop handle; stale fires are guarded
	// by generation counters.
	return time.AfterFunc(time.Hour, func() {})
}

// fireAll runs every captured callback once and clears the list.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fns)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestManager() (*Manager, *fakeTransport, *fakeSignaler, *fakeClock) {
	tr := &fakeTransport{sendResults: true}
	sg := &fakeSignaler{}
	clock := &fakeClock{}
	m := NewManager(engine.SeatOne, tr, sg, DebugTimeouts(), quietLogger())
	m.after = clock.after
	return m, tr, sg, clock
}

// offerPeer is the seat SeatOne initiates toward.
const offerPeer = engine.SeatTwo

// answerPeer is the seat that initiates toward SeatOne.
const answerPeer = engine.SeatThree

func waitPhase(t *testing.T, m *Manager, peer engine.Seat, want ConnPhase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Phase(peer) == want
	}, time.Second, 2*time.Millisecond, "waiting for %v on %v", want, peer)
}

func TestOffererRoleIsFixedCycle(t *testing.T) {
	m, _, _, _ := newTestManager()
	assert.True(t, m.offererTo(offerPeer), "each seat offers to the next in cycle")
	assert.False(t, m.offererTo(answerPeer))
}

func TestPresenceOnlineStartsAttempt(t *testing.T) {
	m, tr, sg, _ := newTestManager()
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)
	assert.Equal(t, 1, tr.offerCount())
	assert.Equal(t, 1, sg.sentOffers())

	m.SetPresence(answerPeer, true)
	waitPhase(t, m, answerPeer, PhaseWaitingForOffer)
	assert.Equal(t, 1, tr.offerCount(), "answerer side never offers")
}

func TestOfferAnswerHandshake(t *testing.T) {
	m, tr, _, _ := newTestManager()
	m.SetPresence(answerPeer, true)
	waitPhase(t, m, answerPeer, PhaseWaitingForOffer)

	m.HandleOffer(answerPeer, "their-offer")
	waitPhase(t, m, answerPeer, PhaseExchangingNetworkInfo)
	assert.Equal(t, 1, tr.answerCount())

	m.HandleTransportOpen(answerPeer)
	waitPhase(t, m, answerPeer, PhaseConnected)
}

func TestCandidatesFollowOfferAndAnswer(t *testing.T) {
	m, tr, sg, _ := newTestManager()
	tr.mu.Lock()
	tr.localCands = []string{"ws://alt:9090"}
	tr.mu.Unlock()

	// The offerer relays its alternate addresses right after the
	// offer itself.
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)
	require.Eventually(t, func() bool {
		return sg.sentCandidates() == 1
	}, time.Second, 2*time.Millisecond)

	// The answerer does the same after its answer.
	m.SetPresence(answerPeer, true)
	waitPhase(t, m, answerPeer, PhaseWaitingForOffer)
	m.HandleOffer(answerPeer, "their-offer")
	waitPhase(t, m, answerPeer, PhaseExchangingNetworkInfo)
	require.Eventually(t, func() bool {
		return sg.sentCandidates() == 2
	}, time.Second, 2*time.Millisecond)

	sg.mu.Lock()
	defer sg.mu.Unlock()
	assert.Equal(t, []string{"ws://alt:9090", "ws://alt:9090"}, sg.candidates)
}

func TestAnswerCompletesOffererSide(t *testing.T) {
	m, tr, _, _ := newTestManager()
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)

	m.HandleAnswer(offerPeer, "their-answer")
	waitPhase(t, m, offerPeer, PhaseExchangingNetworkInfo)
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.accepted == 1
	}, time.Second, 2*time.Millisecond)

	// A duplicate answer is dropped: negotiation already left the
	// awaiting-answer point.
	m.HandleAnswer(offerPeer, "their-answer")
	time.Sleep(10 * time.Millisecond)
	tr.mu.Lock()
	accepted := tr.accepted
	tr.mu.Unlock()
	assert.Equal(t, 1, accepted)
}

func TestGlareSuppression(t *testing.T) {
	m, tr, _, _ := newTestManager()
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)

	// A crossed offer from the peer this seat offers to is ignored.
	m.HandleOffer(offerPeer, "crossed-offer")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, PhaseWaitingForAnswer, m.Phase(offerPeer))
	assert.Zero(t, tr.answerCount(), "no answer to a crossed offer")
}

func TestTimeoutSchedulesExactlyOneRetry(t *testing.T) {
	m, tr, sg, clock := newTestManager()
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)
	require.Equal(t, 1, tr.offerCount())

	// The answer timeout fires: attempt fails, relay documents are
	// cleared, one retry is scheduled for after the backoff.
	clock.fireAll()
	waitPhase(t, m, offerPeer, PhaseFailed)
	require.Equal(t, 1, tr.offerCount(), "no offer during the backoff")
	sg.mu.Lock()
	cleared := sg.cleared
	sg.mu.Unlock()
	assert.GreaterOrEqual(t, cleared, 1)

	// The backoff elapses: exactly one retry goes out.
	clock.fireAll()
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)
	assert.Equal(t, 2, tr.offerCount(), "exactly one retry attempt")

	// The retry times out too: the retry budget is spent, the peer
	// stays failed.
	clock.fireAll()
	waitPhase(t, m, offerPeer, PhaseFailed)
	time.Sleep(10 * time.Millisecond)
	clock.fireAll()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 2, tr.offerCount(), "no retry storm after the single retry")
	assert.Equal(t, PhaseFailed, m.Phase(offerPeer))
}

func TestOfflineDuringBackoffCancelsRetry(t *testing.T) {
	m, tr, _, clock := newTestManager()
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)

	// Fail the attempt, then lose presence before the retry delay
	// elapses.
	m.mu.Lock()
	rec := m.peers[offerPeer]
	m.fail(offerPeer, rec)
	m.mu.Unlock()
	m.SetPresence(offerPeer, false)
	waitPhase(t, m, offerPeer, PhaseIdle)

	clock.fireAll()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, tr.offerCount(), "no offer to an offline peer")
}

func TestOfflineTearsDownByProgress(t *testing.T) {
	m, _, _, _ := newTestManager()
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)

	// Before network-info exchange an offline peer resets to idle.
	m.SetPresence(offerPeer, false)
	assert.Equal(t, PhaseIdle, m.Phase(offerPeer))

	// Past that point it counts as a disconnection.
	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)
	m.HandleAnswer(offerPeer, "answer")
	waitPhase(t, m, offerPeer, PhaseExchangingNetworkInfo)
	m.SetPresence(offerPeer, false)
	assert.Equal(t, PhaseDisconnected, m.Phase(offerPeer))
}

func TestConnectivityRecovery(t *testing.T) {
	m, _, _, clock := newTestManager()
	up := make(chan bool, 4)
	m.OnPeerUp = func(peer engine.Seat, isUp bool) { up <- isUp }

	m.SetPresence(offerPeer, true)
	waitPhase(t, m, offerPeer, PhaseWaitingForAnswer)
	m.HandleTransportOpen(offerPeer)
	waitPhase(t, m, offerPeer, PhaseConnected)
	require.True(t, <-up)

	// Transient loss starts the recovery window; connectivity returns
	// in time, so the phase recovers with no failure.
	m.HandleConnectivity(offerPeer, ConnectivityDisconnected)
	assert.Equal(t, PhaseIceReconnecting, m.Phase(offerPeer))
	m.HandleConnectivity(offerPeer, ConnectivityConnected)
	assert.Equal(t, PhaseConnected, m.Phase(offerPeer))

	// A second loss where the window expires forces failure.
	m.HandleConnectivity(offerPeer, ConnectivityDisconnected)
	clock.fireAll()
	waitPhase(t, m, offerPeer, PhaseFailed)
}
