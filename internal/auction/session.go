package auction

import (
	"github.com/lanebid/auction-engine/internal/model"
)

// session holds the ordered run list and the cursor of the vehicle
// currently on the block. It is only touched under the engine mutex.
type session struct {
	vehicles    []*model.Vehicle
	byID        map[string]*model.Vehicle
	bids        map[string][]model.Bid // vehicleID → append-only history
	activeIndex int
	state       model.SessionState
}

// newSession seeds a live session. The first vehicle goes on the block
// immediately; its current bid opens at the starting bid.
func newSession(vehicles []model.Vehicle) *session {
	s := &session{
		byID:  make(map[string]*model.Vehicle, len(vehicles)),
		bids:  make(map[string][]model.Bid, len(vehicles)),
		state: model.SessionLive,
	}
	for i := range vehicles {
		v := vehicles[i] // copy; the session owns its vehicles
		v.State = model.VehiclePending
		v.CurrentBid = v.StartingBid
		s.vehicles = append(s.vehicles, &v)
		s.byID[v.ID] = &v
	}
	s.vehicles[0].State = model.VehicleActive
	return s
}

// current returns the vehicle at the cursor. During the post-sale
// advancement delay this is the SOLD vehicle, not the next PENDING one.
func (s *session) current() *model.Vehicle {
	if s.activeIndex >= len(s.vehicles) {
		return nil
	}
	return s.vehicles[s.activeIndex]
}

// advance moves the cursor forward. The next vehicle transitions
// PENDING → ACTIVE; when no vehicle remains the session ends. The cursor
// only ever moves forward.
func (s *session) advance() (next *model.Vehicle, ended bool) {
	if s.state == model.SessionEnded {
		return nil, true
	}
	s.activeIndex++
	if s.activeIndex >= len(s.vehicles) {
		s.state = model.SessionEnded
		return nil, true
	}
	next = s.vehicles[s.activeIndex]
	next.State = model.VehicleActive
	return next, false
}

// appendBid records an accepted bid in the vehicle's history.
func (s *session) appendBid(b model.Bid) {
	s.bids[b.VehicleID] = append(s.bids[b.VehicleID], b)
}

// vehicleSnapshot deep-copies one vehicle with its bid history.
func (s *session) vehicleSnapshot(v *model.Vehicle) model.VehicleSnapshot {
	snap := model.VehicleSnapshot{Vehicle: *v}
	if v.SoldAt != nil {
		t := *v.SoldAt
		snap.SoldAt = &t
	}
	history := s.bids[v.ID]
	snap.Bids = make([]model.Bid, len(history))
	copy(snap.Bids, history)
	return snap
}
