package service

import (
	"context"
	"errors"
	"sync"

	"narrative-companion/internal/engine"
	"narrative-companion/internal/engine/leveling"
	"narrative-companion/internal/model"
)

var errDatabaseDown = errors.New("database is down")

type fakeLoader struct {
	mu    sync.Mutex
	snaps map[string]engine.Snapshot
	loads int
}

func newFakeLoader(chars ...model.Character) *fakeLoader {
	l := &fakeLoader{snaps: make(map[string]engine.Snapshot)}
	for _, c := range chars {
		l.snaps[c.ID] = engine.Snapshot{Character: c}
	}
	return l
}

func (l *fakeLoader) Load(_ context.Context, id string) (engine.Snapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	snap, ok := l.snaps[id]
	if !ok {
		return engine.Snapshot{}, errors.New("character not found")
	}
	return snap, nil
}

type fakeLevelUps struct {
	mu     sync.Mutex
	states map[string]leveling.State
	saves  int
}

func newFakeLevelUps() *fakeLevelUps {
	return &fakeLevelUps{states: make(map[string]leveling.State)}
}

func (f *fakeLevelUps) Load(_ context.Context, id string) (leveling.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[id], nil
}

func (f *fakeLevelUps) Save(_ context.Context, id string, st leveling.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[id] = st
	f.saves++
	return nil
}

func (f *fakeLevelUps) state(id string) leveling.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[id]
}

type enqueued struct {
	dirty     *model.DirtySet
	character model.Character
	items     []model.InventoryItem
	journal   []model.JournalEntry
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []enqueued
}

func (f *fakeEnqueuer) Enqueue(dirty *model.DirtySet, c model.Character, items []model.InventoryItem, _ []model.Quest, journal []model.JournalEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enqueued{dirty: dirty, character: c, items: items, journal: journal})
}

func (f *fakeEnqueuer) last() enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakePublisher struct {
	mu    sync.Mutex
	notes []model.Notification
}

func (f *fakePublisher) Publish(_ context.Context, _ string, notes []model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, notes...)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n.Kind)
	}
	return out
}

type gameFixture struct {
	svc       *GameService
	loader    *fakeLoader
	levelUps  *fakeLevelUps
	writer    *fakeEnqueuer
	publisher *fakePublisher
}

func newGameFixture(chars ...model.Character) *gameFixture {
	f := &gameFixture{
		loader:    newFakeLoader(chars...),
		levelUps:  newFakeLevelUps(),
		writer:    &fakeEnqueuer{},
		publisher: &fakePublisher{},
	}
	f.svc = NewGameService(engine.New(engine.Components{}), f.loader, f.levelUps, f.writer, f.publisher, nil, 0)
	return f
}

func testCharacter() model.Character {
	c := model.NewCharacter("c1", 42, "Aela")
	c.Gold = 100
	return c
}

func intPtr(v int) *int { return &v }
