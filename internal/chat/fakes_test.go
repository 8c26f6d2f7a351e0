package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"dmcore-backend/internal/apperr"
	"dmcore-backend/internal/logger"
	"dmcore-backend/internal/models"
	"dmcore-backend/internal/push"
	"dmcore-backend/internal/realtime"
	"dmcore-backend/internal/repository"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore backs every fake repo so cross-table queries see one state.
type memStore struct {
	mu       sync.Mutex
	seq      int
	base     time.Time
	rooms    map[uuid.UUID]*models.Room
	pairs    map[[2]uuid.UUID]uuid.UUID
	messages []*models.Message
	cursors  map[[2]uuid.UUID]*models.ParticipantCursor
	snaps    map[uuid.UUID]*models.Snap
	// failRoomsWith makes GetOrCreate fail for any pair containing the id.
	failRoomsWith map[uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		base:          time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		rooms:         map[uuid.UUID]*models.Room{},
		pairs:         map[[2]uuid.UUID]uuid.UUID{},
		cursors:       map[[2]uuid.UUID]*models.ParticipantCursor{},
		snaps:         map[uuid.UUID]*models.Snap{},
		failRoomsWith: map[uuid.UUID]bool{},
	}
}

// tick hands out strictly increasing store timestamps. Caller holds mu.
func (s *memStore) tick() time.Time {
	s.seq++
	return s.base.Add(time.Duration(s.seq) * time.Millisecond)
}

func (s *memStore) repos() *repository.Repos {
	return &repository.Repos{
		Rooms:    &fakeRooms{s},
		Messages: &fakeMessages{s},
		Cursors:  &fakeCursors{s},
		Snaps:    &fakeSnaps{s},
	}
}

func (s *memStore) messagesIn(roomID uuid.UUID) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.RoomID == roomID {
			out = append(out, *m)
		}
	}
	return out
}

func (s *memStore) message(id uuid.UUID) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return *m
		}
	}
	return models.Message{}
}

func (s *memStore) unread(roomID, userID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cursors[[2]uuid.UUID{roomID, userID}]; ok {
		return c.UnreadCount
	}
	return 0
}

func (s *memStore) room(id uuid.UUID) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rooms[id]
}

type fakeRooms struct{ s *memStore }

func (f *fakeRooms) GetOrCreate(_ context.Context, low, high uuid.UUID, roomType models.RoomType) (*models.Room, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.failRoomsWith[low] || f.s.failRoomsWith[high] {
		return nil, apperr.Internal("get or create room", errors.New("store unavailable"))
	}
	key := [2]uuid.UUID{low, high}
	if id, ok := f.s.pairs[key]; ok {
		r := *f.s.rooms[id]
		return &r, nil
	}
	now := f.s.tick()
	r := &models.Room{
		ID:              uuid.New(),
		ParticipantLow:  low,
		ParticipantHigh: high,
		Type:            roomType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	f.s.rooms[r.ID] = r
	f.s.pairs[key] = r.ID
	out := *r
	return &out, nil
}

func (f *fakeRooms) GetByID(_ context.Context, id uuid.UUID) (*models.Room, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.rooms[id]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	out := *r
	return &out, nil
}

func (f *fakeRooms) ListForUser(_ context.Context, userID uuid.UUID, limit int) ([]*models.RoomSummary, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.RoomSummary
	for _, r := range f.s.rooms {
		if !r.HasParticipant(userID) {
			continue
		}
		sum := &models.RoomSummary{Room: *r, PeerID: r.Other(userID)}
		if c, ok := f.s.cursors[[2]uuid.UUID{r.ID, userID}]; ok {
			sum.UnreadCount = c.UnreadCount
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRooms) UpdateSnapshot(_ context.Context, roomID uuid.UUID, text string, msgType models.MessageType, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.rooms[roomID]
	if !ok {
		return apperr.ErrRoomNotFound
	}
	if r.LastMessageAt != nil && at.Before(*r.LastMessageAt) {
		return nil
	}
	t := msgType
	r.LastMessageText, r.LastMessageType, r.LastMessageAt = text, &t, &at
	r.UpdatedAt = at
	return nil
}

func (f *fakeRooms) SetBlocked(_ context.Context, roomID uuid.UUID, blocked bool, by *uuid.UUID) (*models.Room, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	r, ok := f.s.rooms[roomID]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	r.IsBlocked, r.BlockedBy = blocked, by
	out := *r
	return &out, nil
}

type fakeMessages struct{ s *memStore }

func (f *fakeMessages) Create(_ context.Context, msg *models.Message) (*models.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	m := *msg
	m.ID = uuid.New()
	m.Status = models.StatusSent
	m.CreatedAt = f.s.tick()
	f.s.messages = append(f.s.messages, &m)
	out := m
	return &out, nil
}

func (f *fakeMessages) GetByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, m := range f.s.messages {
		if m.ID == id {
			out := *m
			return &out, nil
		}
	}
	return nil, apperr.ErrMessageNotFound
}

func (f *fakeMessages) Latest(_ context.Context, roomID uuid.UUID) (*models.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var latest *models.Message
	for _, m := range f.s.messages {
		if m.RoomID == roomID && (latest == nil || m.CreatedAt.After(latest.CreatedAt)) {
			latest = m
		}
	}
	if latest == nil {
		return nil, apperr.ErrMessageNotFound
	}
	out := *latest
	return &out, nil
}

func (f *fakeMessages) List(_ context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]*models.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.Message
	for i := len(f.s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := f.s.messages[i]
		if m.RoomID != roomID || (before != nil && !m.CreatedAt.Before(*before)) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeMessages) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, m := range f.s.messages {
		if m.ID == id && m.Status == models.StatusSent {
			m.Status = models.StatusDelivered
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMessages) MarkSeenUpTo(_ context.Context, roomID, readerID uuid.UUID, upTo time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for _, m := range f.s.messages {
		if m.RoomID == roomID && m.SenderID != readerID && !m.CreatedAt.After(upTo) &&
			(m.Status == models.StatusSent || m.Status == models.StatusDelivered) {
			m.Status = models.StatusSeen
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) PromotePending(_ context.Context, recipientID uuid.UUID) ([]*models.Message, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.Message
	for _, m := range f.s.messages {
		r := f.s.rooms[m.RoomID]
		if r == nil || !r.HasParticipant(recipientID) || m.SenderID == recipientID || m.Status != models.StatusSent {
			continue
		}
		m.Status = models.StatusDelivered
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

type fakeCursors struct{ s *memStore }

func (f *fakeCursors) cursor(roomID, userID uuid.UUID) *models.ParticipantCursor {
	key := [2]uuid.UUID{roomID, userID}
	c, ok := f.s.cursors[key]
	if !ok {
		c = &models.ParticipantCursor{RoomID: roomID, UserID: userID}
		f.s.cursors[key] = c
	}
	return c
}

func (f *fakeCursors) Ensure(_ context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := *f.cursor(roomID, userID)
	return &out, nil
}

func (f *fakeCursors) Get(_ context.Context, roomID, userID uuid.UUID) (*models.ParticipantCursor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c, ok := f.s.cursors[[2]uuid.UUID{roomID, userID}]
	if !ok {
		return nil, apperr.NotFound("cursor not found")
	}
	out := *c
	return &out, nil
}

func (f *fakeCursors) AddUnread(_ context.Context, roomID, userID uuid.UUID, delta int) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := f.cursor(roomID, userID)
	c.UnreadCount = max(c.UnreadCount+delta, 0)
	return c.UnreadCount, nil
}

func (f *fakeCursors) MarkRead(_ context.Context, roomID, userID uuid.UUID, messageID *uuid.UUID, at time.Time) (*models.ParticipantCursor, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	c := f.cursor(roomID, userID)
	c.LastReadMessageID, c.LastReadAt, c.UnreadCount = messageID, &at, 0
	out := *c
	return &out, nil
}

func (f *fakeCursors) TotalUnread(_ context.Context, userID uuid.UUID) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	total := 0
	for key, c := range f.s.cursors {
		if key[1] == userID {
			total += c.UnreadCount
		}
	}
	return total, nil
}

type fakeSnaps struct{ s *memStore }

func cloneSnap(s *models.Snap) *models.Snap {
	out := *s
	out.Recipients = append([]models.SnapRecipient(nil), s.Recipients...)
	return &out
}

func (f *fakeSnaps) Create(_ context.Context, snap *models.Snap) (*models.Snap, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	s := cloneSnap(snap)
	s.ID = uuid.New()
	s.CreatedAt = f.s.tick()
	f.s.snaps[s.ID] = s
	return cloneSnap(s), nil
}

func (f *fakeSnaps) GetByID(_ context.Context, id uuid.UUID) (*models.Snap, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	s, ok := f.s.snaps[id]
	if !ok {
		return nil, apperr.ErrSnapNotFound
	}
	return cloneSnap(s), nil
}

func (f *fakeSnaps) MarkDelivered(_ context.Context, snapID, recipientID uuid.UUID, at time.Time) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if s, ok := f.s.snaps[snapID]; ok {
		if rc, ok := s.Recipient(recipientID); ok && rc.DeliveredAt == nil {
			rc.DeliveredAt = &at
		}
	}
	return nil
}

func (f *fakeSnaps) RecordView(_ context.Context, snapID, recipientID uuid.UUID, at time.Time) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	s, ok := f.s.snaps[snapID]
	if !ok {
		return false, apperr.ErrSnapNotFound
	}
	if !at.Before(s.ExpiresAt) {
		return false, apperr.ErrSnapExpired
	}
	rc, ok := s.Recipient(recipientID)
	if !ok || rc.Viewed {
		return false, nil
	}
	rc.Viewed, rc.ViewedAt = true, &at
	s.ViewCount++
	return true, nil
}

func (f *fakeSnaps) MarkExpired(_ context.Context, snapID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if s, ok := f.s.snaps[snapID]; ok {
		s.IsExpired = true
	}
	return nil
}

func (f *fakeSnaps) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var n int64
	for id, s := range f.s.snaps {
		if !cutoff.Before(s.ExpiresAt) {
			delete(f.s.snaps, id)
			n++
		}
	}
	return n, nil
}

type fakePresence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	events map[uuid.UUID][]realtime.Event
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: map[uuid.UUID]bool{}, events: map[uuid.UUID][]realtime.Event{}}
}

func (p *fakePresence) setOnline(userID uuid.UUID, online bool) {
	p.mu.Lock()
	p.online[userID] = online
	p.mu.Unlock()
}

func (p *fakePresence) IsOnline(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) Send(userID uuid.UUID, ev realtime.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[userID] {
		return false
	}
	p.events[userID] = append(p.events[userID], ev)
	return true
}

func (p *fakePresence) received(userID uuid.UUID) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events[userID]...)
}

type fakePush struct {
	mu   sync.Mutex
	sent []push.Notification
}

func (f *fakePush) Notify(_ context.Context, n push.Notification) error {
	f.mu.Lock()
	f.sent = append(f.sent, n)
	f.mu.Unlock()
	return nil
}

func (f *fakePush) Close() error { return nil }

func (f *fakePush) notifications() []push.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push.Notification(nil), f.sent...)
}

type fakeDirectory struct{ names map[uuid.UUID]string }

func (d *fakeDirectory) GetProfile(_ context.Context, userID uuid.UUID) (*models.Profile, error) {
	name, ok := d.names[userID]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return &models.Profile{ID: userID, DisplayName: name}, nil
}

type fakeMedia struct{ clock *fakeClock }

func (m *fakeMedia) SignedURL(_ context.Context, mediaRef string, ttl time.Duration) (*models.MediaCredential, error) {
	return &models.MediaCredential{URL: "https://media.test/" + mediaRef, ExpiresAt: m.clock.Now().Add(ttl)}, nil
}

type testEnv struct {
	svc      *Services
	store    *memStore
	presence *fakePresence
	push     *fakePush
	dir      *fakeDirectory
	clock    *fakeClock
}

func newTestEnv() *testEnv {
	return newTestEnvWith(nil)
}

// newTestEnvWith lets a test wrap the in-memory repos before services are
// built on them.
func newTestEnvWith(wrap func(*repository.Repos)) *testEnv {
	store := newMemStore()
	clock := &fakeClock{now: store.base}
	env := &testEnv{
		store:    store,
		presence: newFakePresence(),
		push:     &fakePush{},
		dir:      &fakeDirectory{names: map[uuid.UUID]string{}},
		clock:    clock,
	}
	repos := store.repos()
	if wrap != nil {
		wrap(repos)
	}
	env.svc = New(Deps{
		Repos:     repos,
		Presence:  env.presence,
		Push:      env.push,
		Directory: env.dir,
		Media:     &fakeMedia{clock: clock},
		Log:       logger.Nop(),
	}, Options{
		DefaultSnapTTL:    time.Hour,
		MaxSnapTTL:        24 * time.Hour,
		CredentialTTL:     time.Minute,
		ReapGrace:         time.Hour,
		MaxRecipients:     5,
		FanoutConcurrency: 2,
		Now:               clock.Now,
	})
	return env
}

func eventsOf[T realtime.Event](evs []realtime.Event) []T {
	var out []T
	for _, ev := range evs {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}
