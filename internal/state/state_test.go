package state

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestIndicatorSetFromMask(t *testing.T) {
	tests := []struct {
		name   string
		mask   uint32
		want   []Indicator
		verify func(t *testing.T, s IndicatorSet)
	}{
		{
			name: "bit 0 is heater 1 only",
			mask: 0x00000001,
			want: []Indicator{IndicatorHeater1},
		},
		{
			name: "empty mask",
			mask: 0,
			want: []Indicator{},
			verify: func(t *testing.T, s IndicatorSet) {
				if !s.Empty() {
					t.Error("set should be empty")
				}
			},
		},
		{
			name: "filter and lights",
			mask: 1<<5 | 1<<6,
			want: []Indicator{IndicatorFilter, IndicatorLights},
		},
		{
			name: "highest known bit",
			mask: 1 << 25,
			want: []Indicator{IndicatorSuperChlorinate},
		},
		{
			name: "reserved bits are dropped",
			mask: 0xFC000000 | 1<<3,
			want: []Indicator{IndicatorPool},
			verify: func(t *testing.T, s IndicatorSet) {
				if s.Mask() != 1<<3 {
					t.Errorf("mask = 0x%08x, want 0x%08x", s.Mask(), uint32(1<<3))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := IndicatorSetFromMask(tt.mask)
			got := s.Active()
			if len(got) != len(tt.want) {
				t.Fatalf("Active() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Active()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			for _, ind := range AllIndicators() {
				wantActive := false
				for _, w := range tt.want {
					if w == ind {
						wantActive = true
					}
				}
				if s.Has(ind) != wantActive {
					t.Errorf("Has(%v) = %v, want %v", ind, s.Has(ind), wantActive)
				}
			}
			if tt.verify != nil {
				tt.verify(t, s)
			}
		})
	}
}

func TestIndicatorBitPositions(t *testing.T) {
	positions := map[Indicator]uint{
		IndicatorHeater1:         0,
		IndicatorValve3:          1,
		IndicatorCheckSystem:     2,
		IndicatorPool:            3,
		IndicatorSpa:             4,
		IndicatorFilter:          5,
		IndicatorLights:          6,
		IndicatorAux1:            7,
		IndicatorAux2:            8,
		IndicatorService:         9,
		IndicatorAux3:            10,
		IndicatorAux6:            13,
		IndicatorValve4:          14,
		IndicatorSpillover:       15,
		IndicatorSystemOff:       16,
		IndicatorAux7:            17,
		IndicatorAux14:           24,
		IndicatorSuperChlorinate: 25,
	}
	for ind, bit := range positions {
		s := IndicatorSetFromMask(1 << bit)
		if !s.Has(ind) || s.Len() != 1 {
			t.Errorf("bit %d should map to %v only, got %v", bit, ind, s)
		}
	}
	if IndicatorCount != 26 {
		t.Errorf("IndicatorCount = %d, want 26", IndicatorCount)
	}
}

func TestParseIndicator(t *testing.T) {
	tests := []struct {
		in      string
		want    Indicator
		wantErr bool
	}{
		{in: "FILTER", want: IndicatorFilter},
		{in: "aux-1", want: IndicatorAux1},
		{in: "Super Chlorinate", want: IndicatorSuperChlorinate},
		{in: " heater_1 ", want: IndicatorHeater1},
		{in: "jacuzzi", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndicator(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIndicator(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseIndicator(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIndicatorSetJSON(t *testing.T) {
	s := NewIndicatorSet(IndicatorPool, IndicatorFilter)
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `["POOL","FILTER"]` {
		t.Errorf("Marshal() = %s", data)
	}

	var back IndicatorSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back != s {
		t.Errorf("Unmarshal() = %v, want %v", back, s)
	}
}

func TestReadingJSON(t *testing.T) {
	st := State{PoolTemperature: Known(85), TemperatureUnit: Fahrenheit}
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if fields["air_temperature"] != nil {
		t.Errorf("air_temperature = %v, want null", fields["air_temperature"])
	}
	if fields["pool_temperature"] != float64(85) {
		t.Errorf("pool_temperature = %v, want 85", fields["pool_temperature"])
	}
	if fields["temperature_unit"] != "F" {
		t.Errorf("temperature_unit = %v, want F", fields["temperature_unit"])
	}
}

func TestStoreUpdate(t *testing.T) {
	store := NewStore()
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	initial := store.Snapshot()
	if initial.Version != 0 || initial.PoolTemperature.Valid || initial.AirTemperature.Valid || initial.ChlorinatorPercent.Valid {
		t.Fatalf("new store should be empty, got %+v", initial)
	}

	notified := 0
	store.AddObserver(ObserverFunc(func() { notified++ }))

	if !store.Update(func(s *State) { s.PoolTemperature = Known(85) }) {
		t.Fatal("first update should report a change")
	}
	if store.Update(func(s *State) { s.PoolTemperature = Known(85) }) {
		t.Error("identical update should not report a change")
	}
	if notified != 1 {
		t.Errorf("observer notified %d times, want 1", notified)
	}

	snap := store.Snapshot()
	if snap.Version != 1 {
		t.Errorf("version = %d, want 1", snap.Version)
	}
	if v, ok := snap.PoolTemperature.Get(); !ok || v != 85 {
		t.Errorf("pool temperature = %v, want 85", snap.PoolTemperature)
	}
	if !snap.UpdatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("updated_at = %v", snap.UpdatedAt)
	}

	// Mutating a snapshot must not leak back into the store
	snap.PoolTemperature = Known(1)
	if store.Snapshot().PoolTemperature.Value != 85 {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestStoreObserverSeesNewState(t *testing.T) {
	store := NewStore()
	var seen []uint64
	store.AddObserver(ObserverFunc(func() {
		seen = append(seen, store.Snapshot().Version)
	}))

	for i := 1; i <= 3; i++ {
		v := i
		store.Update(func(s *State) { s.AirTemperature = Known(v) })
	}

	if len(seen) != 3 {
		t.Fatalf("observer called %d times, want 3", len(seen))
	}
	for i, v := range seen {
		if v < uint64(i+1) {
			t.Errorf("notification %d saw version %d, want >= %d", i, v, i+1)
		}
	}
}

func TestStoreSubscribeCoalesces(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	defer cancel()

	for i := 0; i < 5; i++ {
		v := i
		store.Update(func(s *State) { s.ChlorinatorPercent = Known(v * 10) })
	}

	select {
	case snap := <-ch:
		if snap.Version != 5 {
			t.Errorf("coalesced snapshot version = %d, want 5", snap.Version)
		}
		if snap.ChlorinatorPercent.Value != 40 {
			t.Errorf("chlorinator = %v, want 40", snap.ChlorinatorPercent)
		}
	default:
		t.Fatal("expected a pending snapshot")
	}

	select {
	case snap := <-ch:
		t.Errorf("unexpected extra snapshot %+v", snap)
	default:
	}
}

func TestStoreUnsubscribe(t *testing.T) {
	store := NewStore()
	ch, cancel := store.Subscribe()
	if store.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", store.SubscriberCount())
	}
	cancel()
	cancel() // second call is a no-op

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if store.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", store.SubscriberCount())
	}

	// Updates after unsubscribe must not panic on the closed channel
	store.Update(func(s *State) { s.Indicators = NewIndicatorSet(IndicatorSpa) })
}

func TestStoreConcurrentReaders(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := store.Snapshot()
				// Pool and air are written together; a torn read would differ
				if snap.PoolTemperature != snap.AirTemperature {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		v := i
		store.Update(func(s *State) {
			s.PoolTemperature = Known(v)
			s.AirTemperature = Known(v)
		})
	}
	close(done)
	wg.Wait()
}

func TestStoreObserverRunsBeforeUpdateReturns(t *testing.T) {
	store := NewStore()
	var called bool
	store.AddObserver(ObserverFunc(func() { called = true }))

	if !store.Update(func(s *State) { s.AirTemperature = Known(70) }) {
		t.Fatal("Update() reported no change")
	}
	if !called {
		t.Error("observer had not run when Update returned")
	}
}
