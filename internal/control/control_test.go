package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smarthome-core/migrations"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	sent  []published
	err   error
	block bool
}

func (p *fakePublisher) PublishContext(ctx context.Context, topic string, payload []byte) error {
	if p.block {
		<-ctx.Done()
		return fmt.Errorf("%w: %s", mqtt.ErrPublishTimeout, topic)
	}
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic: topic, payload: payload})
	return nil
}

func (p *fakePublisher) commands(t *testing.T) []Command {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Command, 0, len(p.sent))
	for _, s := range p.sent {
		var c Command
		if err := json.Unmarshal(s.payload, &c); err != nil {
			t.Fatalf("published payload %q is not a command: %v", s.payload, err)
		}
		out = append(out, c)
	}
	return out
}

// failingStore wraps a Store and fails UpdateRelays.
type failingStore struct {
	Store
}

func (failingStore) UpdateRelays(context.Context, string, device.RelayState) error {
	return errors.New("disk I/O error")
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func setupRepo(t *testing.T) *device.SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: database.MemoryPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.MigrateFrom(context.Background(), migrations.Source()); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return device.NewSQLiteRepository(db.DB)
}

func createDevice(t *testing.T, repo device.Repository, deviceID, owner string, state device.RelayState) *device.Device {
	t.Helper()

	d := &device.Device{
		DeviceID: deviceID,
		Name:     "Device " + deviceID,
		Type:     device.TypeESP32,
		Configuration: device.Configuration{
			Relays: device.DefaultRelays().WithState(state),
		},
		Owner: owner,
	}
	if err := repo.Create(context.Background(), d); err != nil {
		t.Fatalf("Create(%s) error = %v", deviceID, err)
	}
	return d
}

func storedState(t *testing.T, repo device.Repository, id, owner string) device.RelayState {
	t.Helper()
	d, err := repo.GetByIDAndOwner(context.Background(), id, owner)
	if err != nil {
		t.Fatalf("GetByIDAndOwner() error = %v", err)
	}
	return d.Configuration.Relays.State()
}

func on(v bool) *bool { return &v }

// reportAll reports every relay slot as s.
func reportAll(s device.RelayState) device.RelayReport {
	var r device.RelayReport
	for i := range s {
		r[i] = on(s[i])
	}
	return r
}

func TestResolveEffectiveState(t *testing.T) {
	stored := device.RelayState{true, false, false, true}
	d := &device.Device{Configuration: device.Configuration{Relays: device.DefaultRelays().WithState(stored)}}

	tests := []struct {
		name   string
		intent ControlIntent
		want   device.RelayState
	}{
		{"empty intent keeps stored", ControlIntent{}, stored},
		{"single override", ControlIntent{nil, nil, on(true), nil}, device.RelayState{true, false, true, true}},
		{"override to false", ControlIntent{on(false), nil, nil, nil}, device.RelayState{false, false, false, true}},
		{"full intent replaces all", ControlIntent{on(false), on(true), on(true), on(false)}, device.RelayState{false, true, true, false}},
		{"same value is a no-op", ControlIntent{on(true), nil, nil, on(true)}, stored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEffectiveState(d, tt.intent); got != tt.want {
				t.Errorf("ResolveEffectiveState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestControlIntent_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    ControlIntent
		wantErr bool
	}{
		{"empty object", `{}`, ControlIntent{}, false},
		{"one relay", `{"relay3":true}`, ControlIntent{}.Set(2, true), false},
		{"explicit false", `{"relay1":false,"relay4":true}`, ControlIntent{}.Set(0, false).Set(3, true), false},
		{"unknown keys ignored", `{"relay2":true,"colour":"red"}`, ControlIntent{}.Set(1, true), false},
		{"string value", `{"relay1":"on"}`, ControlIntent{}, true},
		{"number value", `{"relay1":1}`, ControlIntent{}, true},
		{"array body", `[true]`, ControlIntent{}, true},
		{"null body", `null`, ControlIntent{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ControlIntent
			err := json.Unmarshal([]byte(tt.body), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidIntent) {
					t.Errorf("error = %v, want ErrInvalidIntent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			for i := range got {
				if (got[i] == nil) != (tt.want[i] == nil) || (got[i] != nil && *got[i] != *tt.want[i]) {
					t.Errorf("slot %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDispatchControl_PartialIntent(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{}
	d := NewDispatcher(repo, pub, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{true, false, false, false})

	cmd, err := d.DispatchControl(context.Background(), dev.ID, "user-1", ControlIntent{}.Set(2, true))
	if err != nil {
		t.Fatalf("DispatchControl() error = %v", err)
	}

	want := Command{DeviceID: "esp-1", Relay1: true, Relay3: true}
	if cmd != want {
		t.Errorf("command = %+v, want %+v", cmd, want)
	}

	sent := pub.commands(t)
	if len(sent) != 1 || sent[0] != want {
		t.Fatalf("published = %+v, want exactly %+v", sent, want)
	}
	if pub.sent[0].topic != DefaultTopic {
		t.Errorf("topic = %q, want %q", pub.sent[0].topic, DefaultTopic)
	}
	if got := storedState(t, repo, dev.ID, "user-1"); got != (device.RelayState{true, false, true, false}) {
		t.Errorf("stored state = %v, want [true false true false]", got)
	}
}

func TestDispatchControl_FullIntentIdempotent(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{}
	d := NewDispatcher(repo, pub, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	intent := ControlIntent{on(true), on(false), on(true), on(true)}
	first, err := d.DispatchControl(context.Background(), dev.ID, "user-1", intent)
	if err != nil {
		t.Fatalf("first DispatchControl() error = %v", err)
	}
	second, err := d.DispatchControl(context.Background(), dev.ID, "user-1", intent)
	if err != nil {
		t.Fatalf("second DispatchControl() error = %v", err)
	}

	if first != second {
		t.Errorf("commands differ: %+v vs %+v", first, second)
	}
	if got := storedState(t, repo, dev.ID, "user-1"); got != first.State() {
		t.Errorf("stored state = %v, want %v", got, first.State())
	}
}

func TestDispatchControl_NotFound(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{}
	d := NewDispatcher(repo, pub, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	tests := []struct {
		name      string
		storageID string
		owner     string
	}{
		{"unknown id", "no-such-device", "user-1"},
		{"another owner", dev.ID, "user-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.DispatchControl(context.Background(), tt.storageID, tt.owner, ControlIntent{}.Set(0, true))
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}

	if len(pub.sent) != 0 {
		t.Errorf("published %d commands, want 0", len(pub.sent))
	}
}

func TestDispatchControl_PublishTimeoutPersistsNothing(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{block: true}
	d := NewDispatcher(repo, pub, Config{PublishTimeout: 20 * time.Millisecond})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	_, err := d.DispatchControl(context.Background(), dev.ID, "user-1", ControlIntent{}.Set(0, true))
	if !errors.Is(err, ErrPublishTimeout) {
		t.Fatalf("error = %v, want ErrPublishTimeout", err)
	}
	if got := storedState(t, repo, dev.ID, "user-1"); got != (device.RelayState{}) {
		t.Errorf("stored state = %v, want unchanged", got)
	}
	if d.Stats().PublishFailures != 1 {
		t.Errorf("PublishFailures = %d, want 1", d.Stats().PublishFailures)
	}
}

func TestDispatchControl_PublishFailedPersistsNothing(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{err: mqtt.ErrNotConnected}
	d := NewDispatcher(repo, pub, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	_, err := d.DispatchControl(context.Background(), dev.ID, "user-1", ControlIntent{}.Set(1, true))
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("error = %v, want ErrPublishFailed", err)
	}
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("error = %v, want cause preserved", err)
	}
	if got := storedState(t, repo, dev.ID, "user-1"); got != (device.RelayState{}) {
		t.Errorf("stored state = %v, want unchanged", got)
	}
}

func TestDispatchControl_StorageFailureAfterPublish(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{}
	d := NewDispatcher(failingStore{repo}, pub, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	cmd, err := d.DispatchControl(context.Background(), dev.ID, "user-1", ControlIntent{}.Set(0, true))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("error = %v, want ErrStorageUnavailable", err)
	}
	if len(pub.sent) != 1 {
		t.Errorf("published %d commands, want 1", len(pub.sent))
	}
	if !cmd.Relay1 {
		t.Errorf("command = %+v, want relay1 on", cmd)
	}
}

func TestDispatchControl_ConcurrentPartialIntents(t *testing.T) {
	repo := setupRepo(t)
	pub := &fakePublisher{}
	d := NewDispatcher(repo, pub, Config{})

	for round := range 10 {
		dev := createDevice(t, repo, fmt.Sprintf("esp-%d", round), "user-1", device.RelayState{})

		var wg sync.WaitGroup
		for _, slot := range []int{0, 1} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := d.DispatchControl(context.Background(), dev.ID, "user-1", ControlIntent{}.Set(slot, true)); err != nil {
					t.Errorf("DispatchControl(slot %d) error = %v", slot, err)
				}
			}()
		}
		wg.Wait()

		if got := storedState(t, repo, dev.ID, "user-1"); got != (device.RelayState{true, true, false, false}) {
			t.Fatalf("round %d: stored state = %v, want both relays on", round, got)
		}
	}

	if n := d.locks.size(); n != 0 {
		t.Errorf("lock entries left = %d, want 0", n)
	}
}

func TestGetStatus_LivenessBoundary(t *testing.T) {
	repo := setupRepo(t)
	d := NewDispatcher(repo, &fakePublisher{}, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{true, false, false, false})

	seen := time.UnixMilli(1_750_000_000_000)
	if err := repo.Touch(context.Background(), "esp-1", seen); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	tests := []struct {
		name    string
		elapsed time.Duration
		want    device.Status
	}{
		{"just seen", 0, device.StatusOnline},
		{"29999ms", 29_999 * time.Millisecond, device.StatusOnline},
		{"exactly 30000ms", 30_000 * time.Millisecond, device.StatusOffline},
		{"30001ms", 30_001 * time.Millisecond, device.StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.now = func() time.Time { return seen.Add(tt.elapsed) }

			st, err := d.GetStatus(context.Background(), dev.ID, "user-1")
			if err != nil {
				t.Fatalf("GetStatus() error = %v", err)
			}
			if st.Status != tt.want {
				t.Errorf("Status = %q, want %q", st.Status, tt.want)
			}
			if st.DeviceID != "esp-1" {
				t.Errorf("DeviceID = %q, want esp-1", st.DeviceID)
			}
			if st.LastSeen == nil || !st.LastSeen.Equal(seen) {
				t.Errorf("LastSeen = %v, want %v", st.LastSeen, seen)
			}
			if st.Relays.State() != (device.RelayState{true, false, false, false}) {
				t.Errorf("Relays = %+v", st.Relays)
			}
		})
	}
}

func TestGetStatus_NeverSeen(t *testing.T) {
	repo := setupRepo(t)
	d := NewDispatcher(repo, &fakePublisher{}, Config{})
	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	st, err := d.GetStatus(context.Background(), dev.ID, "user-1")
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if st.Status != device.StatusOffline || st.LastSeen != nil {
		t.Errorf("status = %+v, want offline with no lastSeen", st)
	}

	if _, err := d.GetStatus(context.Background(), dev.ID, "user-2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetStatus(other owner) error = %v, want ErrNotFound", err)
	}
}

func TestReconciler_Observe(t *testing.T) {
	start := time.UnixMilli(1_750_000_000_000)

	tests := []struct {
		name          string
		commandAgo    time.Duration // zero: no command dispatched
		reported      device.RelayReport
		wantStored    device.RelayState
		wantDivergent uint64
	}{
		{
			name:       "matching report",
			reported:   reportAll(device.RelayState{true, false, false, false}),
			wantStored: device.RelayState{true, false, false, false},
		},
		{
			name:          "divergent report without recent command",
			reported:      reportAll(device.RelayState{false, false, false, true}),
			wantStored:    device.RelayState{false, false, false, true},
			wantDivergent: 1,
		},
		{
			name:       "divergent report inside control cycle",
			commandAgo: 5 * time.Second,
			reported:   reportAll(device.RelayState{false, false, false, false}),
			wantStored: device.RelayState{true, false, false, false},
		},
		{
			name:          "divergent report after control cycle",
			commandAgo:    11 * time.Second,
			reported:      reportAll(device.RelayState{false, false, false, false}),
			wantStored:    device.RelayState{false, false, false, false},
			wantDivergent: 1,
		},
		{
			name:       "report without relays",
			reported:   device.RelayReport{},
			wantStored: device.RelayState{true, false, false, false},
		},
		{
			name:       "partial report matching stored slot",
			reported:   device.RelayReport{on(true), nil, nil, nil},
			wantStored: device.RelayState{true, false, false, false},
		},
		{
			name:          "partial report changes only its slot",
			reported:      device.RelayReport{nil, nil, on(true), nil},
			wantStored:    device.RelayState{true, false, true, false},
			wantDivergent: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupRepo(t)
			clock := &fakeClock{t: start}
			d := NewDispatcher(repo, &fakePublisher{}, Config{ControlCycle: 10 * time.Second})
			d.now = clock.Now
			r := NewReconciler(d)

			dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})
			if tt.commandAgo > 0 {
				if _, err := d.DispatchControl(context.Background(), dev.ID, "user-1", ControlIntent{}.Set(0, true)); err != nil {
					t.Fatalf("DispatchControl() error = %v", err)
				}
				clock.Advance(tt.commandAgo)
			} else if err := repo.UpdateRelays(context.Background(), dev.ID, device.RelayState{true, false, false, false}); err != nil {
				t.Fatalf("UpdateRelays() error = %v", err)
			}

			at := clock.Now()
			r.Observe(context.Background(), "esp-1", tt.reported, at)

			got, err := repo.GetByIDAndOwner(context.Background(), dev.ID, "user-1")
			if err != nil {
				t.Fatalf("GetByIDAndOwner() error = %v", err)
			}
			if got.Configuration.Relays.State() != tt.wantStored {
				t.Errorf("stored = %v, want %v", got.Configuration.Relays.State(), tt.wantStored)
			}
			if got.Status != device.StatusOnline {
				t.Errorf("status = %q, want online", got.Status)
			}
			if got.LastSeen == nil || !got.LastSeen.Equal(at) {
				t.Errorf("LastSeen = %v, want %v", got.LastSeen, at)
			}
			if n := d.Stats().Divergences; n != tt.wantDivergent {
				t.Errorf("Divergences = %d, want %d", n, tt.wantDivergent)
			}
		})
	}
}

func TestReconciler_UnknownDeviceIgnored(t *testing.T) {
	repo := setupRepo(t)
	d := NewDispatcher(repo, &fakePublisher{}, Config{})
	r := NewReconciler(d)

	r.Observe(context.Background(), "ghost", reportAll(device.RelayState{true, true, true, true}), time.Now())

	if n := d.Stats().Divergences; n != 0 {
		t.Errorf("Divergences = %d, want 0", n)
	}
}

func TestReconciler_RelaylessTelemetryKeepsCommandedState(t *testing.T) {
	repo := setupRepo(t)
	clock := &fakeClock{t: time.UnixMilli(1_750_000_000_000)}
	d := NewDispatcher(repo, &fakePublisher{}, Config{ControlCycle: 10 * time.Second})
	d.now = clock.Now
	r := NewReconciler(d)

	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})
	intent := ControlIntent{}.Set(0, true).Set(2, true)
	if _, err := d.DispatchControl(context.Background(), dev.ID, "user-1", intent); err != nil {
		t.Fatalf("DispatchControl() error = %v", err)
	}
	clock.Advance(time.Minute)

	// sensor-only firmware never includes relay fields
	r.Observe(context.Background(), "esp-1", device.RelayReport{}, clock.Now())

	want := device.RelayState{true, false, true, false}
	if got := storedState(t, repo, dev.ID, "user-1"); got != want {
		t.Errorf("stored = %v, want %v", got, want)
	}
	if n := d.Stats().Divergences; n != 0 {
		t.Errorf("Divergences = %d, want 0", n)
	}
}

func TestDispatcher_StaleDeviceUpdateKeepsRelayState(t *testing.T) {
	repo := setupRepo(t)
	d := NewDispatcher(repo, &fakePublisher{}, Config{})
	ctx := context.Background()

	dev := createDevice(t, repo, "esp-1", "user-1", device.RelayState{})

	// An edit loaded before the dispatch is saved after it.
	stale, err := repo.GetByIDAndOwner(ctx, dev.ID, "user-1")
	if err != nil {
		t.Fatalf("GetByIDAndOwner() error = %v", err)
	}
	if _, err := d.DispatchControl(ctx, dev.ID, "user-1", ControlIntent{}.Set(0, true)); err != nil {
		t.Fatalf("DispatchControl() error = %v", err)
	}
	stale.Name = "Hallway"
	if err := repo.Update(ctx, stale); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByIDAndOwner(ctx, dev.ID, "user-1")
	if err != nil {
		t.Fatalf("GetByIDAndOwner() error = %v", err)
	}
	if got.Name != "Hallway" {
		t.Errorf("Name = %q, want Hallway", got.Name)
	}
	if st := got.Configuration.Relays.State(); st != (device.RelayState{true, false, false, false}) {
		t.Errorf("relay state = %v, want relay1 on after the dispatch", st)
	}
}

func TestDispatcher_CommandHistoryPruned(t *testing.T) {
	repo := setupRepo(t)
	clock := &fakeClock{t: time.UnixMilli(1_750_000_000_000)}
	d := NewDispatcher(repo, &fakePublisher{}, Config{ControlCycle: 10 * time.Second})
	d.now = clock.Now
	ctx := context.Background()

	for i := range 5 {
		dev := createDevice(t, repo, fmt.Sprintf("esp-%d", i), "user-1", device.RelayState{})
		if _, err := d.DispatchControl(ctx, dev.ID, "user-1", ControlIntent{}.Set(0, true)); err != nil {
			t.Fatalf("DispatchControl() error = %v", err)
		}
	}
	clock.Advance(10 * time.Second)

	last := createDevice(t, repo, "esp-last", "user-1", device.RelayState{})
	if _, err := d.DispatchControl(ctx, last.ID, "user-1", ControlIntent{}.Set(1, true)); err != nil {
		t.Fatalf("DispatchControl() error = %v", err)
	}

	d.cmdMu.Lock()
	n := len(d.lastCommand)
	_, kept := d.lastCommand[last.ID]
	d.cmdMu.Unlock()
	if n != 1 || !kept {
		t.Errorf("command history = %d entries (latest kept %v), want only the latest", n, kept)
	}
	if !d.commandedWithin(last.ID, d.cfg.ControlCycle) {
		t.Error("latest command should still be inside the control cycle")
	}
}

func TestLiveness(t *testing.T) {
	now := time.UnixMilli(100_000)
	window := 30 * time.Second
	at := func(ms int64) *time.Time { v := time.UnixMilli(ms); return &v }

	tests := []struct {
		name     string
		lastSeen *time.Time
		want     device.Status
	}{
		{"nil", nil, device.StatusOffline},
		{"future", at(100_500), device.StatusOnline},
		{"29999ms", at(70_001), device.StatusOnline},
		{"30000ms", at(70_000), device.StatusOffline},
		{"30001ms", at(69_999), device.StatusOffline},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Liveness(tt.lastSeen, now, window); got != tt.want {
				t.Errorf("Liveness() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyedMutex_Serialises(t *testing.T) {
	k := newKeyedMutex()

	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max holders = %d, want 1", maxInside)
	}
	if k.size() != 0 {
		t.Errorf("entries = %d, want 0", k.size())
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := k.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}
