package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/limiter"
	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
	"github.com/and161185/socialkeeper/internal/repository"
)

// memStore is an in-memory stand-in for every repository the Datastore uses.
// Deleting an authorization cascades to dependent rows like the real schema.
type memStore struct {
	mu sync.Mutex

	authz    []model.Authorization
	inflight []model.InflightAuthorization
	samples  []model.Sample
	granular []model.GranularDatum
	streams  map[string][]model.StreamRecord
	views    map[string]string
	limits   map[string]int64

	// failWith makes every call return the error when set.
	failWith error
	calls    map[string]int
}

var (
	_ repository.AuthorizationRepository = (*memAuthz)(nil)
	_ repository.InflightRepository      = (*memInflight)(nil)
	_ repository.SampleRepository        = (*memSamples)(nil)
	_ repository.GranularRepository      = (*memGranular)(nil)
	_ repository.StreamRepository        = (*memStreams)(nil)
	_ repository.ViewRepository          = (*memViews)(nil)
	_ limiter.Limiter                    = (*memLimits)(nil)
)

type (
	memAuthz    struct{ *memStore }
	memInflight struct{ *memStore }
	memSamples  struct{ *memStore }
	memGranular struct{ *memStore }
	memStreams  struct{ *memStore }
	memViews    struct{ *memStore }
	memLimits   struct {
		*memStore
		gap time.Duration
	}
)

func newMemStore() *memStore {
	return &memStore{
		streams: map[string][]model.StreamRecord{},
		views:   map[string]string{},
		limits:  map[string]int64{},
		calls:   map[string]int{},
	}
}

// enter locks the store and counts the call. Callers must unlock.
func (s *memStore) enter(name string) error {
	s.mu.Lock()
	s.calls[name]++
	return s.failWith
}

func (s *memStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func fieldsMatch(where query.Fields, a model.Authorization) bool {
	for _, f := range where {
		if query.IsZero(f.Value) {
			continue
		}
		var got string
		switch f.Column {
		case "uuid":
			got = a.UUID
		case "client_name":
			got = a.ClientName
		case "service_name":
			got = a.ServiceName
		case "user_id":
			got = a.UserID
		default:
			return false
		}
		if got != f.Value {
			return false
		}
	}
	return true
}

func hasPredicate(where query.Fields) bool {
	pred, _ := query.Where(where, 1)
	return pred != ""
}

func (r memAuthz) FindOne(_ context.Context, where query.Fields) (*model.Authorization, error) {
	if err := r.enter("authz.FindOne"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	if !hasPredicate(where) {
		return nil, errs.ErrPrecondition
	}
	for _, a := range r.authz {
		if fieldsMatch(where, a) {
			return &a, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r memAuthz) GetByUUID(_ context.Context, uuid string) (*model.Authorization, error) {
	if err := r.enter("authz.GetByUUID"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	for _, a := range r.authz {
		if a.UUID == uuid {
			return &a, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r memAuthz) Create(_ context.Context, a *model.Authorization) (*model.Authorization, error) {
	if err := r.enter("authz.Create"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	for _, x := range r.authz {
		if x.UUID == a.UUID {
			return nil, errs.ErrAlreadyExists
		}
	}
	r.authz = append(r.authz, *a)
	out := *a
	return &out, nil
}

func (r memAuthz) UpdateCredentials(_ context.Context, uuid string, upd model.CredentialUpdate) error {
	if err := r.enter("authz.UpdateCredentials"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	for i := range r.authz {
		if r.authz[i].UUID != uuid {
			continue
		}
		if upd.Token != nil {
			r.authz[i].Token = *upd.Token
		}
		if upd.Secret != nil {
			r.authz[i].Secret = *upd.Secret
		}
	}
	return nil
}

func (r memAuthz) Expire(_ context.Context, uuid string, ts int64) error {
	if err := r.enter("authz.Expire"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	for i := range r.authz {
		if r.authz[i].UUID == uuid {
			r.authz[i].ExpiredOn = &ts
			return nil
		}
	}
	return errs.ErrNotFound
}

func (r memAuthz) Delete(_ context.Context, where query.Fields) error {
	if err := r.enter("authz.Delete"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	if !hasPredicate(where) {
		return errs.ErrPrecondition
	}
	var gone []string
	r.authz = slices.DeleteFunc(r.authz, func(a model.Authorization) bool {
		if fieldsMatch(where, a) {
			gone = append(gone, a.UUID)
			return true
		}
		return false
	})
	for _, id := range gone {
		r.cascade(id)
	}
	return nil
}

// cascade must be called with the lock held.
func (s *memStore) cascade(uuid string) {
	s.samples = slices.DeleteFunc(s.samples, func(x model.Sample) bool { return x.UUID == uuid })
	s.granular = slices.DeleteFunc(s.granular, func(x model.GranularDatum) bool { return x.UUID == uuid })
	delete(s.streams, uuid)
	delete(s.limits, uuid)
}

func (r memInflight) Store(_ context.Context, in model.InflightAuthorization) error {
	if err := r.enter("inflight.Store"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.inflight = append(r.inflight, in)
	return nil
}

func (r memInflight) Take(_ context.Context, where query.Fields) (*model.InflightAuthorization, error) {
	if err := r.enter("inflight.Take"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	if !hasPredicate(where) {
		return nil, errs.ErrPrecondition
	}
	match := func(in model.InflightAuthorization) bool {
		for _, f := range where {
			if query.IsZero(f.Value) {
				continue
			}
			got := map[string]string{
				"service_name":  in.ServiceName,
				"request_token": in.RequestToken,
				"state":         in.State,
			}[f.Column]
			if got != f.Value {
				return false
			}
		}
		return true
	}
	var first *model.InflightAuthorization
	for _, in := range r.inflight {
		if match(in) {
			first = &in
			break
		}
	}
	r.inflight = slices.DeleteFunc(r.inflight, match)
	if first == nil {
		return nil, errs.ErrNotFound
	}
	return first, nil
}

// sorted returns the samples of (uuid, method) in ascending timestamp order.
// The lock must be held.
func (r memSamples) sorted(uuid, method string) []model.Sample {
	var out []model.Sample
	for _, s := range r.samples {
		if s.UUID == uuid && s.Method == method {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func (r memSamples) Latest(_ context.Context, uuid, method string) (model.Sample, error) {
	if err := r.enter("samples.Latest"); err != nil {
		r.mu.Unlock()
		return model.Sample{}, err
	}
	defer r.mu.Unlock()
	rows := r.sorted(uuid, method)
	if len(rows) == 0 {
		return model.Sample{}, errs.ErrNotFound
	}
	return rows[len(rows)-1], nil
}

func (r memSamples) Between(_ context.Context, uuid, method string, start, end int64, desc bool) ([]model.Sample, error) {
	if err := r.enter("samples.Between"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	var out []model.Sample
	for _, s := range r.sorted(uuid, method) {
		if s.Timestamp >= start && s.Timestamp <= end {
			out = append(out, s)
		}
	}
	if desc {
		slices.Reverse(out)
	}
	return out, nil
}

func (r memSamples) Before(_ context.Context, uuid, method string, ts int64) (model.Sample, error) {
	if err := r.enter("samples.Before"); err != nil {
		r.mu.Unlock()
		return model.Sample{}, err
	}
	defer r.mu.Unlock()
	rows := r.sorted(uuid, method)
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Timestamp < ts {
			return rows[i], nil
		}
	}
	return model.Sample{}, errs.ErrNotFound
}

func (r memSamples) Insert(_ context.Context, s model.Sample) error {
	if err := r.enter("samples.Insert"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func (r memSamples) DeleteByUUID(_ context.Context, uuid string) error {
	if err := r.enter("samples.DeleteByUUID"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.samples = slices.DeleteFunc(r.samples, func(x model.Sample) bool { return x.UUID == uuid })
	return nil
}

func (r memGranular) LastTimestamp(_ context.Context, uuid, method string) (int64, error) {
	if err := r.enter("granular.LastTimestamp"); err != nil {
		r.mu.Unlock()
		return 0, err
	}
	defer r.mu.Unlock()
	var (
		last  int64
		found bool
	)
	for _, g := range r.granular {
		if g.UUID == uuid && g.Method == method && (!found || g.Timestamp > last) {
			last, found = g.Timestamp, true
		}
	}
	if !found {
		return 0, errs.ErrNotFound
	}
	return last, nil
}

func (r memGranular) Insert(_ context.Context, d model.GranularDatum) error {
	if err := r.enter("granular.Insert"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.granular = append(r.granular, d)
	return nil
}

func (r memGranular) Exists(_ context.Context, uuid, method, itemID string) (bool, error) {
	if err := r.enter("granular.Exists"); err != nil {
		r.mu.Unlock()
		return false, err
	}
	defer r.mu.Unlock()
	for _, g := range r.granular {
		if g.UUID == uuid && g.Method == method && g.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (r memGranular) TopActor(_ context.Context, uuid, method string, start, end int64, exclude string) (model.TopActor, error) {
	if err := r.enter("granular.TopActor"); err != nil {
		r.mu.Unlock()
		return model.TopActor{}, err
	}
	defer r.mu.Unlock()
	agg := map[string]*model.TopActor{}
	for _, g := range r.granular {
		if g.UUID != uuid || g.Method != method || g.ActorID == exclude ||
			g.Timestamp < start || g.Timestamp > end {
			continue
		}
		t, ok := agg[g.ActorID]
		if !ok {
			t = &model.TopActor{ActorID: g.ActorID}
			agg[g.ActorID] = t
		}
		t.Num++
		t.Latest = max(t.Latest, g.Timestamp)
	}
	var best *model.TopActor
	for _, t := range agg {
		if best == nil || t.Num > best.Num || (t.Num == best.Num && t.Latest > best.Latest) {
			best = t
		}
	}
	if best == nil {
		return model.TopActor{}, errs.ErrNotFound
	}
	return *best, nil
}

func (r memGranular) DeleteByUUID(_ context.Context, uuid string) error {
	if err := r.enter("granular.DeleteByUUID"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.granular = slices.DeleteFunc(r.granular, func(x model.GranularDatum) bool { return x.UUID == uuid })
	return nil
}

func (r memStreams) List(_ context.Context, uuid string) ([]model.StreamRecord, error) {
	if err := r.enter("streams.List"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	return slices.Clone(r.streams[uuid]), nil
}

func (r memStreams) Insert(_ context.Context, uuid string, rec model.StreamRecord) error {
	if err := r.enter("streams.Insert"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.streams[uuid] = append(r.streams[uuid], rec)
	return nil
}

func (r memStreams) UpdateData(_ context.Context, uuid, itemID, data string) error {
	if err := r.enter("streams.UpdateData"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	for i := range r.streams[uuid] {
		if r.streams[uuid][i].ItemID == itemID {
			r.streams[uuid][i].Data = data
		}
	}
	return nil
}

func (r memStreams) Delete(_ context.Context, uuid, itemID string) error {
	if err := r.enter("streams.Delete"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.streams[uuid] = slices.DeleteFunc(r.streams[uuid], func(x model.StreamRecord) bool { return x.ItemID == itemID })
	return nil
}

func (r memStreams) Query(_ context.Context, uuid string, q model.StreamQuery) ([]string, error) {
	if err := r.enter("streams.Query"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	var rows []model.StreamRecord
	for _, rec := range r.streams[uuid] {
		if q.Start != 0 && rec.Timestamp < q.Start {
			continue
		}
		if q.End != 0 && rec.Timestamp > q.End {
			continue
		}
		if q.StreamType != "" && !strings.HasPrefix(rec.ItemID, strings.TrimSuffix(q.StreamType, "s")+":") {
			continue
		}
		rows = append(rows, rec)
	}
	asc := strings.EqualFold(q.OrderBy, "timestamp ASC")
	sort.SliceStable(rows, func(i, j int) bool {
		if asc {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].Timestamp > rows[j].Timestamp
	})
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]string, 0, len(rows))
	for _, rec := range rows {
		out = append(out, rec.Data)
	}
	return out, nil
}

func (r memStreams) DeleteByUUID(_ context.Context, uuid string) error {
	if err := r.enter("streams.DeleteByUUID"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	delete(r.streams, uuid)
	return nil
}

func (r memViews) Names(_ context.Context) ([]string, error) {
	if err := r.enter("views.Names"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.views))
	for name := range r.views {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (r memViews) Exists(_ context.Context, name string) (bool, error) {
	if err := r.enter("views.Exists"); err != nil {
		r.mu.Unlock()
		return false, err
	}
	defer r.mu.Unlock()
	_, ok := r.views[name]
	return ok, nil
}

func (r memViews) Get(_ context.Context, name string) (string, error) {
	if err := r.enter("views.Get"); err != nil {
		r.mu.Unlock()
		return "", err
	}
	defer r.mu.Unlock()
	def, ok := r.views[name]
	if !ok {
		return "", errs.ErrNotFound
	}
	return def, nil
}

func (r memViews) Upsert(_ context.Context, name, definition string) error {
	if err := r.enter("views.Upsert"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.views[name] = definition
	return nil
}

func (r memViews) Delete(_ context.Context, name string) error {
	if err := r.enter("views.Delete"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	delete(r.views, name)
	return nil
}

func (r memLimits) Allow(_ context.Context, uuid string, now time.Time) (bool, time.Duration, error) {
	if err := r.enter("limits.Allow"); err != nil {
		r.mu.Unlock()
		return false, 0, err
	}
	defer r.mu.Unlock()
	last, ok := r.limits[uuid]
	if !ok {
		return true, 0, nil
	}
	next := time.Unix(last, 0).Add(r.gap)
	if next.After(now) {
		return false, next.Sub(now), nil
	}
	return true, 0, nil
}

func (r memLimits) Touch(_ context.Context, uuid string, now time.Time) error {
	if err := r.enter("limits.Touch"); err != nil {
		r.mu.Unlock()
		return err
	}
	defer r.mu.Unlock()
	r.limits[uuid] = now.Unix()
	return nil
}

type fakeProber struct{ status string }

func (p fakeProber) Status(context.Context) string { return p.status }

// newTestDatastore builds a Datastore over a fresh memStore with a fixed clock
// and sequential UUIDs.
func newTestDatastore(now time.Time) (*Datastore, *memStore) {
	s := newMemStore()
	var (
		mu  sync.Mutex
		seq int
	)
	ds := NewDatastore(Deps{
		Authz:    memAuthz{s},
		Inflight: memInflight{s},
		Samples:  memSamples{s},
		Granular: memGranular{s},
		Streams:  memStreams{s},
		Views:    memViews{s},
		Limits:   memLimits{memStore: s, gap: time.Minute},
		Prober:   fakeProber{status: "ok"},
		Clock:    func() time.Time { return now },
		NewUUID: func() (string, error) {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("00000000-0000-4000-8000-%012d", seq), nil
		},
		Fanout: 4,
	})
	return ds, s
}
